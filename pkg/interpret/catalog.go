package interpret

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aretw0/autopilot/pkg/domain"
)

var (
	catalogTasksKeys = []string{"tasks", "任务列表"}
	catalogNameKeys  = []string{"task", "name", "任务"}
)

// MatchPolicy tunes how a plain-text action description is matched against catalog steps.
type MatchPolicy struct {
	// Ratio is the minimum share of the description's keywords that must appear in the step.
	Ratio float64 `mapstructure:"keyword_match_ratio" yaml:"keyword_match_ratio"`
	// StopWords are ignored when extracting keywords.
	StopWords []string `mapstructure:"stop_words" yaml:"stop_words"`
}

// DefaultMatchPolicy returns the policy used when none is configured.
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{
		Ratio: 0.5,
		StopWords: []string{
			"的", "了", "在", "是", "和", "与", "或", "但", "然后", "接着", "之后",
			"the", "and", "then", "to", "of", "an", "or", "but", "after",
		},
	}
}

// CatalogStep is one step of a catalog task.
type CatalogStep struct {
	Description string
	Action      domain.ActionSpec
}

// CatalogTask is a named task with the steps that accomplish it.
type CatalogTask struct {
	Name  string
	Steps []CatalogStep
}

// Catalog is the parsed capability catalog.
type Catalog struct {
	Tasks []CatalogTask
}

// ParseCatalog reads the structured part of a capability catalog:
// {"tasks":[{"task": "...", "steps":[{"description": "...", "action": {...}}]}]}.
// Catalogs that are free text produce an error; they remain usable as prompt text.
func ParseCatalog(text string) (Catalog, error) {
	obj, err := ParseObject(text)
	if err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	root, _ := asFields(obj)
	_, v, ok := root.lookup(catalogTasksKeys)
	if !ok {
		return Catalog{}, fmt.Errorf("parse catalog: %w", domain.ErrUnrecognized)
	}
	list, _ := v.([]any)

	var cat Catalog
	for _, item := range list {
		entry, ok := asFields(item)
		if !ok {
			continue
		}
		task := CatalogTask{}
		if _, name, ok := entry.lookup(catalogNameKeys); ok {
			task.Name = textOf(name)
		}
		steps, _ := stepList(entry)
		for _, s := range steps {
			step, ok := asFields(s)
			if !ok {
				continue
			}
			cs := CatalogStep{}
			if _, d, ok := step.lookup(descriptionKeys); ok {
				cs.Description = textOf(d)
			}
			if _, a, ok := step.lookup(stepActionKeys); ok {
				if m, ok := asFields(a); ok {
					spec, err := DecodeAction(m.plainMap())
					if err == nil && spec.Valid() {
						cs.Action = spec
					}
				}
			}
			if cs.Action.Valid() {
				task.Steps = append(task.Steps, cs)
			}
		}
		cat.Tasks = append(cat.Tasks, task)
	}
	return cat, nil
}

// Match finds the catalog step whose description matches description.
// Steps of the named task are searched first, then every task.
func (c Catalog) Match(task, description string, policy MatchPolicy) (domain.ActionSpec, bool) {
	for _, t := range c.Tasks {
		if t.Name != task {
			continue
		}
		if spec, ok := matchSteps(t.Steps, description, policy); ok {
			return spec, true
		}
	}
	for _, t := range c.Tasks {
		if spec, ok := matchSteps(t.Steps, description, policy); ok {
			return spec, true
		}
	}
	return domain.ActionSpec{}, false
}

func matchSteps(steps []CatalogStep, description string, policy MatchPolicy) (domain.ActionSpec, bool) {
	for _, s := range steps {
		if KeywordsMatch(description, s.Description, policy) {
			spec := s.Action
			spec.Description = s.Description
			return spec, true
		}
	}
	return domain.ActionSpec{}, false
}

// KeywordsMatch reports whether enough of action's keywords appear in step.
func KeywordsMatch(action, step string, policy MatchPolicy) bool {
	actionWords := Keywords(action, policy.StopWords)
	if len(actionWords) == 0 {
		return false
	}
	stepWords := make(map[string]bool)
	for _, w := range Keywords(step, policy.StopWords) {
		stepWords[w] = true
	}

	matched := 0
	for _, w := range actionWords {
		if stepWords[w] {
			matched++
		}
	}
	return matched > 0 && float64(matched)/float64(len(actionWords)) >= policy.Ratio
}

// Keywords splits text on anything that is not a letter or digit and keeps
// lowercase words longer than one rune that are not stop words.
func Keywords(text string, stopWords []string) []string {
	stop := make(map[string]bool, len(stopWords))
	for _, w := range stopWords {
		stop[strings.ToLower(w)] = true
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []string
	for _, f := range fields {
		f = strings.ToLower(f)
		if len([]rune(f)) <= 1 || stop[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
