// Package prompt assembles the per-turn prompt of the primary model.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
)

// DefaultPersona is the identity preamble used when none is configured.
const DefaultPersona = "I am a digital life. I live inside a web application and act on it only through its HTTP API, one action at a time, to accomplish the tasks I am given."

const outputRules = `Output rules:
1. Reply with a single JSON object and nothing else.
2. Choose exactly ONE action per turn from the capability catalog. Never plan several calls at once.
3. Fill every url, parameter and body with literal values. No placeholders such as {id} or <token>.
4. Set "done" to "yes" when this action completes the task. If the last query returned data: null or an empty list, answer "yes".
5. The credential is attached automatically. Do not add an Authorization header.

Reply format:
{
  "action": {"method": "GET|POST|PUT|DELETE", "url": "...", "params": {}, "body": {}},
  "step_result": "the result this action should produce",
  "next_step": "what to do in the following turn",
  "done": "yes|no"
}`

// Input is everything the builder needs to know about the current turn.
type Input struct {
	Task         domain.Task
	LastResponse string
	HasResponse  bool
	Step         int
	NextStep     string
}

// Builder produces the prompt of the primary model.
type Builder struct {
	persona    string
	catalog    ports.TextSource
	classifier Classifier
	policy     Policy
	logger     *slog.Logger
}

type Option func(*Builder)

// WithPersona overrides the identity preamble.
func WithPersona(persona string) Option {
	return func(b *Builder) {
		if strings.TrimSpace(persona) != "" {
			b.persona = persona
		}
	}
}

// WithClassifier replaces the response classifier.
func WithClassifier(c Classifier) Option {
	return func(b *Builder) {
		b.classifier = c
	}
}

// WithPolicy sets the marker policy used by the default classifier and the summaries.
func WithPolicy(p Policy) Option {
	return func(b *Builder) {
		b.policy = p.withDefaults()
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New creates a Builder reading the capability catalog from catalog.
func New(catalog ports.TextSource, opts ...Option) *Builder {
	b := &Builder{
		persona: DefaultPersona,
		catalog: catalog,
		policy:  DefaultPolicy(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.classifier == nil {
		b.classifier = NewKeywordClassifier(b.policy)
	}
	return b
}

// Classify exposes the configured classifier.
func (b *Builder) Classify(in Input) domain.ResponseClass {
	return b.classifier.Classify(in.LastResponse, in.HasResponse, in.Step)
}

// Build assembles the prompt for in.
func (b *Builder) Build(ctx context.Context, in Input) string {
	class := b.Classify(in)
	b.logger.Debug("last response classified", "task", in.Task, "step", in.Step, "class", class)

	var sb strings.Builder
	section := func(title, body string) {
		sb.WriteString("## ")
		sb.WriteString(title)
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(body))
		sb.WriteString("\n\n")
	}

	section("Who am I", b.persona+"\n\n"+outputRules)
	section("My task", string(in.Task))
	section("What did I just do", Summarize(class, in.LastResponse, b.policy))
	section("What now", Guidance(class, in))
	section("What can I do", b.capabilities(ctx))
	return strings.TrimSpace(sb.String()) + "\n"
}

func (b *Builder) capabilities(ctx context.Context) string {
	if b.catalog == nil {
		return "(no capability catalog configured)"
	}
	text, err := b.catalog.Read(ctx)
	if err != nil {
		b.logger.Warn("capability catalog unreadable", "error", err)
		return "(capability catalog unavailable)"
	}
	return text
}

// Guidance returns the forward guidance: the model's own next step when it left one,
// otherwise a default phrased from the class, the task and the step index.
func Guidance(class domain.ResponseClass, in Input) string {
	if next := strings.TrimSpace(in.NextStep); next != "" {
		return next
	}
	next := in.Step + 1
	switch class {
	case domain.ClassNewTaskStart:
		return fmt.Sprintf("Start the task %q. Choose the first action.", in.Task)
	case domain.ClassSuccessNoData:
		return fmt.Sprintf("The result is empty or the operation is already done. The task %q should be considered complete: set \"done\" to \"yes\" now.", in.Task)
	case domain.ClassSuccessWithData, domain.ClassSuccessUnclassified:
		return fmt.Sprintf("The last action succeeded. Use its result to choose action %d of %q, or set \"done\" to \"yes\" if the task goal is met.", next, in.Task)
	case domain.ClassError:
		return fmt.Sprintf("The last action failed. Check the url, parameters and login state, then retry or adjust action %d of %q.", next, in.Task)
	default:
		return fmt.Sprintf("Continue with action %d of %q.", next, in.Task)
	}
}
