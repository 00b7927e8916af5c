package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/interpret"
	"github.com/aretw0/autopilot/pkg/judge"
	"github.com/aretw0/autopilot/pkg/ports"
	"github.com/aretw0/autopilot/pkg/prompt"
	"github.com/aretw0/autopilot/pkg/state"
)

// TaskPicker yields the next task to work on.
type TaskPicker interface {
	Next(ctx context.Context) (domain.Task, bool)
}

// PromptBuilder renders the prompt of the primary model.
type PromptBuilder interface {
	Build(ctx context.Context, in prompt.Input) string
}

// ActionInterpreter turns an action fragment into executable specs.
type ActionInterpreter interface {
	Interpret(ctx context.Context, fragment any, task domain.Task) (interpret.Result, error)
}

// ActionDispatcher executes specs in order.
type ActionDispatcher interface {
	DispatchAll(ctx context.Context, specs []domain.ActionSpec) []domain.Outcome
}

// CompletionJudge decides whether the active task is done.
type CompletionJudge interface {
	Judge(ctx context.Context, history judge.History, lastResponse string) domain.Verdict
}

// Components are the collaborators the engine drives on every iteration.
type Components struct {
	Store       *state.Store
	Tasks       TaskPicker
	Prompts     PromptBuilder
	Model       ports.Model
	Interpreter ActionInterpreter
	Dispatcher  ActionDispatcher
	Judge       CompletionJudge
}

func (c Components) validate() error {
	switch {
	case c.Store == nil:
		return errors.New("engine: state store is required")
	case c.Tasks == nil:
		return errors.New("engine: task source is required")
	case c.Prompts == nil:
		return errors.New("engine: prompt builder is required")
	case c.Model == nil:
		return errors.New("engine: model is required")
	case c.Interpreter == nil:
		return errors.New("engine: interpreter is required")
	case c.Dispatcher == nil:
		return errors.New("engine: dispatcher is required")
	case c.Judge == nil:
		return errors.New("engine: judge is required")
	}
	return nil
}

// Phase is the lifecycle position of the engine.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseStopped Phase = "stopped"
)

// Stop reasons reported on the OnStop hook and in Status.
const (
	ReasonRequested = "stop requested"
	ReasonCeiling   = "iteration limit reached"
	ReasonNoTask    = "no task available"
	ReasonCancelled = "context cancelled"
)

// errInterrupted marks an iteration abandoned because the run was aborted between calls.
var errInterrupted = errors.New("iteration interrupted")

// Engine runs the autonomous loop: pick a task, prompt the model, act, judge, repeat.
type Engine struct {
	c        Components
	cfg      Config
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	sleep    SleepFunc
	newRunID func() string

	mu          sync.Mutex
	phase       Phase
	runID       string
	iterations  int
	stopReason  string
	stopping    bool
	lastVerdict *domain.Verdict
	startedAt   time.Time
	abort       context.CancelFunc
	wake        context.CancelFunc
	done        chan struct{}
}

// NewEngine creates an idle engine.
func NewEngine(c Components, opts ...EngineOption) (*Engine, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		c:        c,
		cfg:      DefaultConfig(),
		logger:   logging.NewNop(),
		sleep:    timerSleep,
		newRunID: uuid.NewString,
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Start clears the state store and launches the loop in the background.
// The loop outlives ctx; use Stop or Abort to end it.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseRunning {
		return domain.ErrAlreadyRunning
	}
	if err := e.c.Store.Clear(ctx); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}

	runCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	paceCtx, wake := context.WithCancel(runCtx)

	e.phase = PhaseRunning
	e.runID = e.newRunID()
	e.iterations = 0
	e.stopReason = ""
	e.stopping = false
	e.lastVerdict = nil
	e.startedAt = time.Now()
	e.abort = abort
	e.wake = wake
	e.done = make(chan struct{})

	e.logger.Info("engine started", "run_id", e.runID, "max_iterations", e.cfg.MaxIterations)
	go e.loop(runCtx, paceCtx, e.done)
	return nil
}

// Run starts the loop and blocks until it ends. Cancelling ctx aborts the loop,
// including in-flight calls.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	done := e.doneChan()
	select {
	case <-done:
	case <-ctx.Done():
		e.Abort()
		<-done
	}
	return nil
}

// Stop asks the loop to halt. The current iteration runs to completion, the
// cooldown timer is cancelled and the loop exits before the next iteration.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning {
		return domain.ErrNotRunning
	}
	if !e.stopping {
		e.stopping = true
		e.wake()
		e.logger.Info("stop requested", "run_id", e.runID)
	}
	return nil
}

// Abort cancels the run context, interrupting in-flight calls.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseRunning {
		e.stopping = true
		e.abort()
	}
}

// Wait blocks until the current run ends or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := e.doneChan()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == PhaseRunning
}

func (e *Engine) doneChan() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *Engine) loop(runCtx, paceCtx context.Context, done chan struct{}) {
	defer close(done)

	reason := ReasonRequested
	for {
		if r, halt := e.checkHalt(runCtx); halt {
			reason = r
			break
		}
		n := e.nextIteration()

		delay, err := e.iterate(runCtx, n)
		switch {
		case errors.Is(err, domain.ErrNoTask):
			reason = ReasonNoTask
		case errors.Is(err, errInterrupted):
			// checked again at the top
		case err != nil && runCtx.Err() == nil:
			e.logger.Error("iteration failed", "run_id", e.currentRunID(), "iteration", n, "error", err)
			e.emitError(runCtx, n, err)
			delay = e.cfg.ErrorBackoff
		}
		if reason == ReasonNoTask {
			break
		}
		if r, halt := e.checkHalt(runCtx); halt {
			reason = r
			break
		}
		if err := e.sleep(paceCtx, delay); err != nil && runCtx.Err() == nil && !e.isStopping() {
			e.logger.Warn("cooldown interrupted", "error", err)
		}
	}
	e.finish(runCtx, reason)
}

// checkHalt evaluates the stop flag, cancellation and the iteration ceiling, in that order.
func (e *Engine) checkHalt(ctx context.Context) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case ctx.Err() != nil:
		return ReasonCancelled, true
	case e.stopping:
		return ReasonRequested, true
	case e.iterations >= e.cfg.MaxIterations:
		return ReasonCeiling, true
	}
	return "", false
}

func (e *Engine) nextIteration() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.iterations++
	return e.iterations
}

func (e *Engine) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}

// interrupted reports an Abort. A cooperative Stop lets the turn finish and is
// observed by checkHalt.
func (e *Engine) interrupted(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (e *Engine) currentRunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

func (e *Engine) finish(ctx context.Context, reason string) {
	e.mu.Lock()
	e.phase = PhaseStopped
	e.stopReason = reason
	e.stopping = false
	runID, n := e.runID, e.iterations
	abort, wake := e.abort, e.wake
	e.mu.Unlock()

	wake()
	abort()

	e.logger.Info("engine stopped", "run_id", runID, "iterations", n, "reason", reason)
	if e.hooks.OnStop != nil {
		e.hooks.OnStop(context.WithoutCancel(ctx), &domain.StopEvent{
			EventBase: e.base(domain.EventStop, n),
			Reason:    reason,
		})
	}
}

// iterate runs one turn and returns the cooldown to apply before the next.
func (e *Engine) iterate(ctx context.Context, n int) (time.Duration, error) {
	store := e.c.Store

	task, ok := store.CurrentTask(ctx)
	if !ok {
		task, ok = e.c.Tasks.Next(ctx)
		if !ok {
			return 0, domain.ErrNoTask
		}
		if err := store.BeginTask(ctx, task); err != nil {
			return 0, fmt.Errorf("begin task: %w", err)
		}
		e.logger.Info("task selected", "iteration", n, "task", string(task))
		if e.hooks.OnTaskSelected != nil {
			e.hooks.OnTaskSelected(ctx, &domain.TaskEvent{EventBase: e.base(domain.EventTaskSelected, n), Task: task})
		}
	}

	step := store.Step(ctx)
	if e.hooks.OnIterationStart != nil {
		e.hooks.OnIterationStart(ctx, &domain.TaskEvent{EventBase: e.base(domain.EventIterationStart, n), Task: task, Step: step})
	}
	last, hasLast := store.LastResponse(ctx)
	text := e.c.Prompts.Build(ctx, prompt.Input{
		Task:         task,
		LastResponse: last,
		HasResponse:  hasLast,
		Step:         step,
		NextStep:     store.NextStep(ctx),
	})

	if e.interrupted(ctx) {
		return 0, errInterrupted
	}
	reply, err := e.c.Model.Complete(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("model call: %w", err)
	}
	if e.interrupted(ctx) {
		return 0, errInterrupted
	}

	turn, err := interpret.ParseTurn(reply)
	if err != nil {
		return 0, fmt.Errorf("parse model reply: %w", err)
	}

	res, err := e.c.Interpreter.Interpret(ctx, turn.Action, task)
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		e.logger.Warn("no executable action this turn", "iteration", n, "task", string(task), "error", err)
	}

	for _, out := range e.c.Dispatcher.DispatchAll(ctx, res.Actions) {
		if e.hooks.OnActionDispatched != nil {
			e.hooks.OnActionDispatched(ctx, &domain.ActionEvent{
				EventBase: e.base(domain.EventActionDispatch, n),
				Method:    out.Spec.Method,
				URL:       out.Spec.URL,
				Status:    out.Status,
				IsError:   !out.OK(),
				Duration:  out.Duration,
			})
		}
	}

	if err := store.RecordTurn(ctx, turn); err != nil {
		return 0, fmt.Errorf("record turn: %w", err)
	}
	next, err := store.IncrementStep(ctx)
	if err != nil {
		return 0, fmt.Errorf("advance step: %w", err)
	}

	if e.interrupted(ctx) {
		return 0, errInterrupted
	}
	lastResp, _ := store.LastResponse(ctx)
	verdict := e.c.Judge.Judge(ctx, judge.History{Task: task, Step: next, StepResult: turn.StepResult}, lastResp)

	if verdict.ShouldComplete != turn.SelfComplete {
		e.logger.Info("judge disagrees with model self-report",
			"task", string(task), "self_complete", turn.SelfComplete,
			"verdict", verdict.ShouldComplete, "reason", verdict.Reason)
	}
	e.mu.Lock()
	v := verdict
	e.lastVerdict = &v
	e.mu.Unlock()
	if e.hooks.OnVerdict != nil {
		e.hooks.OnVerdict(ctx, &domain.VerdictEvent{
			EventBase:    e.base(domain.EventVerdict, n),
			Task:         task,
			SelfComplete: turn.SelfComplete,
			Verdict:      verdict,
		})
	}

	if !verdict.ShouldComplete {
		return e.cfg.ContinueDelay, nil
	}
	if err := store.CompleteTask(ctx); err != nil {
		return 0, fmt.Errorf("complete task: %w", err)
	}
	e.logger.Info("task completed", "iteration", n, "task", string(task), "steps", next, "reason", verdict.Reason)
	if e.hooks.OnTaskCompleted != nil {
		e.hooks.OnTaskCompleted(ctx, &domain.TaskEvent{EventBase: e.base(domain.EventTaskCompleted, n), Task: task, Step: next})
	}
	return e.cfg.TurnoverDelay, nil
}

func (e *Engine) emitError(ctx context.Context, n int, err error) {
	if e.hooks.OnError != nil {
		e.hooks.OnError(ctx, &domain.ErrorEvent{EventBase: e.base(domain.EventError, n), Err: err})
	}
}

func (e *Engine) base(t domain.EventType, n int) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		Type:      t,
		RunID:     e.currentRunID(),
		Iteration: n,
	}
}
