package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
)

const repairPrompt = `You convert an action instruction into a standard JSON plan.

Task: %s

Original instruction:
%s

Rules:
1. Convert ONLY the action given above. Do not add steps, do not plan ahead.
2. Every step must reuse a method and url that appear in the original instruction.
3. Keep literal values as given. No placeholders.
4. Reply with JSON only, in exactly this format:
{"%s": {"steps": [{"description": "what this step does", "action": {"method": "GET|POST|PUT|DELETE", "url": "...", "params": {}, "body": {}}}]}}
`

// Repairer asks the model to restate an unrecognized fragment as a stepped plan.
type Repairer struct {
	model      ports.Model
	recognizer *Recognizer
	logger     *slog.Logger
}

// NewRepairer creates a Repairer backed by model.
func NewRepairer(model ports.Model, logger *slog.Logger) *Repairer {
	return &Repairer{
		model:      model,
		recognizer: NewRecognizer(logger),
		logger:     logger,
	}
}

// Repair issues one repair request for fragment and returns the actions of the reply
// that the fragment itself names. Anything else the model adds is dropped.
func (r *Repairer) Repair(ctx context.Context, fragment any, task domain.Task) (domain.Plan, error) {
	original := fragmentText(fragment)
	name := string(task)
	if name == "" {
		name = "task"
	}

	reply, err := r.model.Complete(ctx, fmt.Sprintf(repairPrompt, task, original, name))
	if err != nil {
		return domain.Plan{Shape: domain.ShapeNone}, fmt.Errorf("repair request: %w", err)
	}
	raw, err := CutBraces(reply)
	if err != nil {
		return domain.Plan{Shape: domain.ShapeNone}, fmt.Errorf("repair reply: %w", err)
	}
	obj, err := DecodeOrdered(raw)
	if err != nil {
		return domain.Plan{Shape: domain.ShapeNone}, fmt.Errorf("repair reply: %w", err)
	}

	plan := r.recognizer.Recognize(obj)
	allowed := permittedSignatures(fragment)

	var kept []domain.ActionSpec
	for _, spec := range plan.Actions {
		if allowed[spec.Signature()] || mentions(original, spec) {
			kept = append(kept, spec)
			continue
		}
		r.logger.Warn("repair dropped an action absent from the original instruction",
			"method", spec.Method, "url", spec.URL)
	}
	if len(kept) == 0 {
		return domain.Plan{Shape: domain.ShapeNone}, domain.ErrUnrecognized
	}
	return domain.Plan{Shape: domain.ShapeStepped, Actions: kept}, nil
}

// permittedSignatures collects every method/url pair present anywhere in fragment.
func permittedSignatures(fragment any) map[string]bool {
	out := make(map[string]bool)
	var walk func(v any)
	walk = func(v any) {
		v = asContainer(v)
		if list, ok := v.([]any); ok {
			for _, child := range list {
				walk(child)
			}
			return
		}
		obj, ok := asFields(v)
		if !ok {
			return
		}
		if obj.hasFold("method") && obj.hasFold("url") {
			if spec, err := DecodeAction(obj.plainMap()); err == nil && spec.Valid() {
				out[spec.Signature()] = true
			}
		}
		for _, k := range obj.keys {
			walk(obj.vals[k])
		}
	}
	walk(fragment)
	return out
}

// mentions reports whether a free-text fragment names both the url and the method of spec.
// The method must appear as an upper-case word and the url as a whole token, so
// "posts" does not name POST and "/api/posts" does not name "/api/post".
func mentions(original string, spec domain.ActionSpec) bool {
	trimmed := strings.TrimSpace(original)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return false
	}
	return hasWord(original, spec.Method) && hasToken(original, spec.URL)
}

// hasWord reports whether word occurs in text bounded by non-letters.
func hasWord(text, word string) bool {
	if word == "" {
		return false
	}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if w == word {
			return true
		}
	}
	return false
}

// hasToken reports whether url occurs in text without url characters directly
// around it. A query, a fragment or sentence punctuation may follow it.
func hasToken(text, url string) bool {
	if url == "" {
		return false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], url)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(url)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isURLRune(r)
}

func boundaryAfter(text string, i int) bool {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case !isURLRune(r), r == '?', r == '#':
			return true
		case r == '.', r == ':':
			i += size
		default:
			return false
		}
	}
	return true
}

func isURLRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("/-_~%?=&#:@+.", r)
}

func fragmentText(fragment any) string {
	if s, ok := fragment.(string); ok {
		return s
	}
	b, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Sprint(fragment)
	}
	return string(b)
}
