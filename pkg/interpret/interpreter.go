package interpret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
)

// Result is the outcome of interpreting one fragment.
type Result struct {
	domain.Plan
	// Matched is set when a text description was resolved through the catalog.
	Matched bool
	// Repaired is set when the plan came from the repair path.
	Repaired bool
}

// Interpreter resolves model output into executable actions.
type Interpreter struct {
	recognizer *Recognizer
	repairer   *Repairer
	catalog    ports.TextSource
	policy     MatchPolicy
	logger     *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// WithRepair enables the one-shot repair request through model.
func WithRepair(model ports.Model) Option {
	return func(i *Interpreter) {
		i.repairer = NewRepairer(model, nil)
	}
}

// WithCatalog sets the capability catalog used to resolve plain-text descriptions.
func WithCatalog(src ports.TextSource) Option {
	return func(i *Interpreter) {
		i.catalog = src
	}
}

// WithMatchPolicy overrides the keyword matching policy.
func WithMatchPolicy(p MatchPolicy) Option {
	return func(i *Interpreter) {
		i.policy = p
	}
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		policy: DefaultMatchPolicy(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.recognizer = NewRecognizer(i.logger)
	if i.repairer != nil {
		i.repairer.logger = i.logger
		i.repairer.recognizer = i.recognizer
	}
	return i
}

// Interpret resolves fragment for task. It returns domain.ErrUnrecognized when nothing
// executable was found, including after a failed repair; callers treat that as a no-op turn.
func (i *Interpreter) Interpret(ctx context.Context, fragment any, task domain.Task) (Result, error) {
	if plan := i.recognizer.Recognize(fragment); !plan.Empty() {
		i.logger.Debug("action recognized", "shape", plan.Shape, "count", len(plan.Actions))
		return Result{Plan: plan}, nil
	}

	if desc, ok := description(fragment); ok && i.catalog != nil {
		if spec, ok := i.matchCatalog(ctx, task, desc); ok {
			i.logger.Info("action resolved from catalog", "description", desc, "method", spec.Method, "url", spec.URL)
			return Result{
				Plan:    domain.Plan{Shape: domain.ShapePlain, Actions: []domain.ActionSpec{spec}},
				Matched: true,
			}, nil
		}
	}

	if i.repairer == nil || fragment == nil {
		return Result{Plan: domain.Plan{Shape: domain.ShapeNone}}, domain.ErrUnrecognized
	}

	plan, err := i.repairer.Repair(ctx, fragment, task)
	if err != nil {
		i.logger.Warn("repair failed, turn executes no actions", "task", task, "error", err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{Plan: domain.Plan{Shape: domain.ShapeNone}}, err
		}
		return Result{Plan: domain.Plan{Shape: domain.ShapeNone}}, fmt.Errorf("%w: %v", domain.ErrUnrecognized, err)
	}
	i.logger.Info("action repaired", "count", len(plan.Actions))
	return Result{Plan: plan, Repaired: true}, nil
}

func (i *Interpreter) matchCatalog(ctx context.Context, task domain.Task, desc string) (domain.ActionSpec, bool) {
	text, err := i.catalog.Read(ctx)
	if err != nil {
		i.logger.Warn("capability catalog unreadable", "error", err)
		return domain.ActionSpec{}, false
	}
	cat, err := ParseCatalog(text)
	if err != nil {
		i.logger.Debug("capability catalog is not structured", "error", err)
		return domain.ActionSpec{}, false
	}
	return cat.Match(string(task), desc, i.policy)
}

// description returns fragment as a plain-text action description.
func description(fragment any) (string, bool) {
	s, ok := fragment.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return "", false
	}
	return s, true
}
