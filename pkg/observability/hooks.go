package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/autopilot/pkg/domain"
)

// LogHooks returns hooks that log every engine event at the given level.
// Errors are always logged at Error.
func LogHooks(logger *slog.Logger, level slog.Level) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIterationStart: func(ctx context.Context, e *domain.TaskEvent) {
			logger.Log(ctx, level, "iteration_start", base(e.EventBase, "task", string(e.Task), "step", e.Step)...)
		},
		OnTaskSelected: func(ctx context.Context, e *domain.TaskEvent) {
			logger.Log(ctx, level, "task_selected", base(e.EventBase, "task", string(e.Task))...)
		},
		OnTaskCompleted: func(ctx context.Context, e *domain.TaskEvent) {
			logger.Log(ctx, level, "task_completed", base(e.EventBase, "task", string(e.Task), "steps", e.Step)...)
		},
		OnActionDispatched: func(ctx context.Context, e *domain.ActionEvent) {
			logger.Log(ctx, level, "action_dispatch", base(e.EventBase,
				"method", e.Method, "url", e.URL, "status", e.Status,
				"is_error", e.IsError, "duration", e.Duration)...)
		},
		OnVerdict: func(ctx context.Context, e *domain.VerdictEvent) {
			logger.Log(ctx, level, "verdict", base(e.EventBase,
				"task", string(e.Task), "self_complete", e.SelfComplete,
				"should_complete", e.Verdict.ShouldComplete, "reason", e.Verdict.Reason)...)
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			logger.ErrorContext(ctx, "iteration_error", base(e.EventBase, "error", e.Err)...)
		},
		OnStop: func(ctx context.Context, e *domain.StopEvent) {
			logger.Log(ctx, level, "stop", base(e.EventBase, "reason", e.Reason)...)
		},
	}
}

func base(b domain.EventBase, attrs ...any) []any {
	return append([]any{"run_id", b.RunID, "iteration", b.Iteration}, attrs...)
}
