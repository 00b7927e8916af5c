package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventIterationStart EventType = "iteration_start"
	EventTaskSelected   EventType = "task_selected"
	EventTaskCompleted  EventType = "task_completed"
	EventActionDispatch EventType = "action_dispatch"
	EventVerdict        EventType = "verdict"
	EventError          EventType = "error"
	EventStop           EventType = "stop"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Iteration int       `json:"iteration"`
}

// TaskEvent is emitted on iteration start, task selection and task completion.
type TaskEvent struct {
	EventBase
	Task Task `json:"task,omitempty"`
	Step int  `json:"step"`
}

// ActionEvent is emitted after each dispatched action.
type ActionEvent struct {
	EventBase
	Method   string `json:"method"`
	URL      string `json:"url"`
	Status   int    `json:"status"`
	IsError  bool   `json:"is_error,omitempty"`
	Duration time.Duration
}

// VerdictEvent carries both the model's self-report and the judge's verdict.
type VerdictEvent struct {
	EventBase
	Task         Task    `json:"task"`
	SelfComplete bool    `json:"self_complete"`
	Verdict      Verdict `json:"verdict"`
}

// ErrorEvent is emitted when an iteration fails.
type ErrorEvent struct {
	EventBase
	Err error
}

// StopEvent is emitted once when the loop exits.
type StopEvent struct {
	EventBase
	Reason string `json:"reason"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnIterationStart   func(context.Context, *TaskEvent)
	OnTaskSelected     func(context.Context, *TaskEvent)
	OnTaskCompleted    func(context.Context, *TaskEvent)
	OnActionDispatched func(context.Context, *ActionEvent)
	OnVerdict          func(context.Context, *VerdictEvent)
	OnError            func(context.Context, *ErrorEvent)
	OnStop             func(context.Context, *StopEvent)
}

// Merge returns hooks that call h first and then other for every event.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnIterationStart:   chain(h.OnIterationStart, other.OnIterationStart),
		OnTaskSelected:     chain(h.OnTaskSelected, other.OnTaskSelected),
		OnTaskCompleted:    chain(h.OnTaskCompleted, other.OnTaskCompleted),
		OnActionDispatched: chain(h.OnActionDispatched, other.OnActionDispatched),
		OnVerdict:          chain(h.OnVerdict, other.OnVerdict),
		OnError:            chain(h.OnError, other.OnError),
		OnStop:             chain(h.OnStop, other.OnStop),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
