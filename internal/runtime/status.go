package runtime

import (
	"context"
	"time"

	"github.com/aretw0/autopilot/pkg/domain"
)

// Status is a point-in-time view of the engine and the active task.
type Status struct {
	Phase       Phase           `json:"phase"`
	Running     bool            `json:"running"`
	RunID       string          `json:"run_id,omitempty"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	Iterations  int             `json:"iterations"`
	MaxIter     int             `json:"max_iterations"`
	StopReason  string          `json:"stop_reason,omitempty"`
	Task        domain.Task     `json:"current_task,omitempty"`
	Step        int             `json:"current_step"`
	LoggedIn    bool            `json:"logged_in"`
	LastVerdict *domain.Verdict `json:"last_verdict,omitempty"`
}

// Status reports the engine phase together with the task progress held in the store.
func (e *Engine) Status(ctx context.Context) Status {
	e.mu.Lock()
	s := Status{
		Phase:      e.phase,
		Running:    e.phase == PhaseRunning,
		RunID:      e.runID,
		StartedAt:  e.startedAt,
		Iterations: e.iterations,
		MaxIter:    e.cfg.MaxIterations,
		StopReason: e.stopReason,
	}
	if e.lastVerdict != nil {
		v := *e.lastVerdict
		s.LastVerdict = &v
	}
	e.mu.Unlock()

	store := e.c.Store
	if task, ok := store.CurrentTask(ctx); ok {
		s.Task = task
		s.Step = store.Step(ctx)
	}
	s.LoggedIn = store.HasLoginToken(ctx)
	return s
}
