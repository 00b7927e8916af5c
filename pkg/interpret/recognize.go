package interpret

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

var (
	stepsKeys       = []string{"steps", "步骤"}
	descriptionKeys = []string{"description", "desc", "描述"}
	stepActionKeys  = []string{"action", "动作"}
	lastStepKeys    = []string{"last", "is_last", "是否最后步骤"}
)

// Recognizer maps a raw fragment onto one of the known action shapes.
type Recognizer struct {
	logger *slog.Logger
}

// NewRecognizer creates a Recognizer that logs per-field failures to logger.
func NewRecognizer(logger *slog.Logger) *Recognizer {
	return &Recognizer{logger: logger}
}

// Recognize returns the plan encoded by fragment, or an empty plan of ShapeNone.
// Actions keep the order in which the fragment lists them. Fields that fail to
// decode are logged and skipped.
func (r *Recognizer) Recognize(fragment any) domain.Plan {
	if list, ok := asContainer(fragment).([]any); ok {
		if steps := r.steps(list, "<root>"); len(steps) > 0 {
			return domain.Plan{Shape: domain.ShapeStepped, Actions: steps}
		}
		return domain.Plan{Shape: domain.ShapeNone}
	}
	if obj, ok := asFields(fragment); ok {
		return r.object(obj)
	}
	return domain.Plan{Shape: domain.ShapeNone}
}

func (r *Recognizer) object(obj fields) domain.Plan {
	if spec, ok := r.action(obj, "<root>"); ok {
		return domain.Plan{Shape: domain.ShapePlain, Actions: []domain.ActionSpec{spec}}
	}
	if list, ok := stepList(obj); ok {
		if steps := r.steps(list, "<root>"); len(steps) > 0 {
			return domain.Plan{Shape: domain.ShapeStepped, Actions: steps}
		}
	}

	var direct, stepped, nested []domain.ActionSpec
	for _, k := range obj.keys {
		child, ok := asFields(obj.vals[k])
		if !ok {
			continue
		}
		if spec, ok := r.action(child, k); ok {
			direct = append(direct, spec)
			continue
		}
		if list, ok := stepList(child); ok {
			stepped = append(stepped, r.steps(list, k)...)
			continue
		}
		for _, sk := range child.keys {
			grand, ok := asFields(child.vals[sk])
			if !ok {
				continue
			}
			field := k + "." + sk
			if spec, ok := r.action(grand, field); ok {
				nested = append(nested, spec)
			} else if list, ok := stepList(grand); ok {
				stepped = append(stepped, r.steps(list, field)...)
			}
		}
	}

	switch {
	case len(direct) == 1 && len(stepped) == 0 && len(nested) == 0:
		return domain.Plan{Shape: domain.ShapePlain, Actions: direct}
	case len(stepped) > 0:
		return domain.Plan{Shape: domain.ShapeStepped, Actions: stepped}
	case len(direct)+len(nested) > 0:
		return domain.Plan{Shape: domain.ShapeNested, Actions: append(direct, nested...)}
	}
	return domain.Plan{Shape: domain.ShapeNone}
}

func (r *Recognizer) steps(list []any, field string) []domain.ActionSpec {
	var out []domain.ActionSpec
	for i, item := range list {
		step, ok := asFields(item)
		if !ok {
			r.logger.Warn("skipping step: not an object", "field", field, "index", i)
			continue
		}

		target := step
		if _, v, ok := step.lookup(stepActionKeys); ok {
			if m, ok := asFields(v); ok {
				target = m
			}
		}
		spec, ok := r.action(target, fmt.Sprintf("%s[%d]", field, i))
		if !ok {
			continue
		}
		if _, v, ok := step.lookup(descriptionKeys); ok {
			spec.Description = textOf(v)
		}
		if _, v, ok := step.lookup(lastStepKeys); ok {
			spec.Last = truthy(v)
		}
		out = append(out, spec)
	}
	return out
}

// action decodes obj as an ActionSpec when it carries method and url.
func (r *Recognizer) action(obj fields, field string) (domain.ActionSpec, bool) {
	if !obj.hasFold("method") || !obj.hasFold("url") {
		return domain.ActionSpec{}, false
	}
	spec, err := DecodeAction(obj.plainMap())
	if err != nil {
		r.logger.Warn("skipping malformed action", "field", field, "error", err)
		return domain.ActionSpec{}, false
	}
	if !spec.Valid() {
		r.logger.Warn("skipping action without method or url", "field", field)
		return domain.ActionSpec{}, false
	}
	return spec, true
}

// DecodeAction converts a generic action object into an ActionSpec.
func DecodeAction(obj map[string]any) (domain.ActionSpec, error) {
	var raw struct {
		Method     string         `mapstructure:"method"`
		URL        string         `mapstructure:"url"`
		Params     map[string]any `mapstructure:"params"`
		Body       any            `mapstructure:"body"`
		BodyString string         `mapstructure:"bodyString"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return domain.ActionSpec{}, err
	}
	if err := dec.Decode(obj); err != nil {
		return domain.ActionSpec{}, err
	}

	spec := domain.ActionSpec{
		Method:   strings.ToUpper(strings.TrimSpace(raw.Method)),
		URL:      strings.TrimSpace(raw.URL),
		Params:   raw.Params,
		BodyText: raw.BodyString,
	}
	switch b := raw.Body.(type) {
	case nil:
	case string:
		if spec.BodyText == "" {
			spec.BodyText = b
		}
	default:
		spec.Body = b
	}
	return spec, nil
}

// stepList returns the step list held under a steps key.
func stepList(obj fields) ([]any, bool) {
	_, v, ok := obj.lookup(stepsKeys)
	if !ok {
		return nil, false
	}
	list, ok := asContainer(v).([]any)
	return list, ok
}

// asContainer decodes string-encoded JSON objects and arrays, which models emit
// when they quote a nested value.
func asContainer(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		if decoded, err := decodeValue(s); err == nil {
			return decoded
		}
	}
	return v
}
