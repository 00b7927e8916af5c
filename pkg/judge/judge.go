// Package judge decides task completion with an independent model query.
//
// The verdict is authoritative over the primary model's self-reported completion flag,
// which tends to under-report completion and keep the loop busy.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/interpret"
	"github.com/aretw0/autopilot/pkg/ports"
)

const judgePrompt = `You are a task completion judge. Your only job is to decide whether the task is already complete.

Task: %s

Execution history:
%s

Last operation response:
%s

Rules:
1. Identify the core requirement of the task.
2. Check whether the execution history already satisfies it.
3. If the task is to publish something and it was published successfully, it is complete.
4. If the task is to review something and the review was done, it is complete.
5. If a query returned empty data, the task is usually complete.
6. Avoid infinite loops: once the core requirement is met, do not continue just because more could be done.

Reply strictly in this JSON format:
{
  "should_complete": true/false,
  "reason": "why"
}`

// History is the short execution summary handed to the judge.
type History struct {
	Task       domain.Task
	Step       int
	StepResult string
}

// String renders the history as prompt text.
func (h History) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", h.Task)
	fmt.Fprintf(&sb, "Current step: %d\n", h.Step)
	if h.StepResult != "" {
		fmt.Fprintf(&sb, "Last step result: %s\n", h.StepResult)
	}
	return strings.TrimSpace(sb.String())
}

// Judge issues the completion query.
type Judge struct {
	model  ports.Model
	logger *slog.Logger
}

type Option func(*Judge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Judge) {
		j.logger = logger
	}
}

// New creates a Judge backed by model.
func New(model ports.Model, opts ...Option) *Judge {
	j := &Judge{model: model, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Judge returns the verdict for the active task. Any failure yields ShouldComplete=false.
func (j *Judge) Judge(ctx context.Context, history History, lastResponse string) domain.Verdict {
	if strings.TrimSpace(lastResponse) == "" {
		lastResponse = "(none)"
	}
	reply, err := j.model.Complete(ctx, fmt.Sprintf(judgePrompt, history.Task, history.String(), lastResponse))
	if err != nil {
		j.logger.Warn("judge request failed", "task", history.Task, "error", err)
		return domain.Verdict{Reason: "judge unavailable: " + err.Error()}
	}

	v, err := ParseVerdict(reply)
	if err != nil {
		j.logger.Warn("judge reply unparseable", "task", history.Task, "error", err)
		return domain.Verdict{Reason: "unparseable verdict"}
	}
	j.logger.Info("judge verdict", "task", history.Task, "should_complete", v.ShouldComplete, "reason", v.Reason)
	return v
}

// ParseVerdict decodes the first balanced-brace JSON object of reply.
// should_complete must be a boolean (or "true"/"false"); anything else is an error.
func ParseVerdict(reply string) (domain.Verdict, error) {
	raw, err := interpret.ExtractJSON(reply)
	if err != nil {
		return domain.Verdict{}, err
	}
	obj, err := interpret.DecodeObject(raw)
	if err != nil {
		return domain.Verdict{}, err
	}

	v := domain.Verdict{}
	if r, ok := obj["reason"].(string); ok {
		v.Reason = r
	}
	switch sc := obj["should_complete"].(type) {
	case bool:
		v.ShouldComplete = sc
	case string:
		switch strings.ToLower(strings.TrimSpace(sc)) {
		case "true":
			v.ShouldComplete = true
		case "false":
		default:
			return domain.Verdict{}, fmt.Errorf("should_complete: unexpected value %q", sc)
		}
	default:
		return domain.Verdict{}, fmt.Errorf("should_complete missing or not boolean: %s", mustJSON(obj["should_complete"]))
	}
	return v, nil
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
