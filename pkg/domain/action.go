package domain

import (
	"strings"
	"time"
)

// ActionSpec is the normalized description of one HTTP call produced from model output.
type ActionSpec struct {
	Method string         `json:"method" mapstructure:"method"`
	URL    string         `json:"url" mapstructure:"url"`
	Params map[string]any `json:"params,omitempty" mapstructure:"params"`

	// Body holds a structured JSON payload (object or list).
	Body any `json:"body,omitempty" mapstructure:"body"`
	// BodyText holds a raw payload used when Body is not structured.
	BodyText string `json:"bodyString,omitempty" mapstructure:"bodyString"`

	// Description is the step text when the action came from a stepped plan.
	Description string `json:"description,omitempty" mapstructure:"-"`
	// Last marks the final step of a stepped plan, when the model says so.
	Last bool `json:"last,omitempty" mapstructure:"-"`
}

// Valid reports whether the action carries both a method and a url.
func (a ActionSpec) Valid() bool {
	return strings.TrimSpace(a.Method) != "" && strings.TrimSpace(a.URL) != ""
}

// Signature returns the (method, url) identity of the action.
func (a ActionSpec) Signature() string {
	return strings.ToUpper(strings.TrimSpace(a.Method)) + " " + strings.TrimSpace(a.URL)
}

// Shape identifies which encoding the model used for its actions.
type Shape string

const (
	// ShapeNone means no recognizable action encoding was found.
	ShapeNone Shape = "none"
	// ShapePlain is a single object exposing method/url.
	ShapePlain Shape = "plain"
	// ShapeStepped is a named list of steps, each with a nested action.
	ShapeStepped Shape = "stepped"
	// ShapeNested is a named object whose sub-fields are action objects.
	ShapeNested Shape = "nested"
)

// Plan is the recognizer output: the shape it matched and the normalized actions.
type Plan struct {
	Shape   Shape
	Actions []ActionSpec
}

// Empty reports whether the plan has nothing to execute.
func (p Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Outcome records the result of dispatching one ActionSpec.
type Outcome struct {
	Spec       ActionSpec
	Status     int
	Body       string
	Err        error
	Credential string
	Duration   time.Duration
}

// OK reports whether the call completed with a 2xx status.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Status >= 200 && o.Status < 300
}
