package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/autopilot/pkg/domain"
)

// Config bounds the loop and sets its pacing.
type Config struct {
	// MaxIterations is the hard ceiling on iterations per run. Zero or less means the default.
	MaxIterations int
	// ContinueDelay is the cooldown after a turn that did not complete its task.
	ContinueDelay time.Duration
	// TurnoverDelay is the longer cooldown after a task is completed.
	TurnoverDelay time.Duration
	// ErrorBackoff is the cooldown after a failed iteration.
	ErrorBackoff time.Duration
}

// DefaultMaxIterations is the iteration ceiling used when none is configured.
const DefaultMaxIterations = 100

// DefaultConfig returns the standard pacing.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		ContinueDelay: 8 * time.Second,
		TurnoverDelay: 15 * time.Second,
		ErrorBackoff:  10 * time.Second,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithConfig sets the loop bounds and pacing.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		if cfg.MaxIterations <= 0 {
			cfg.MaxIterations = DefaultMaxIterations
		}
		e.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithSleep replaces the cooldown timer. Tests use it to record delays.
func WithSleep(fn SleepFunc) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithRunIDGenerator overrides how run identifiers are produced.
func WithRunIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newRunID = fn
		}
	}
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
