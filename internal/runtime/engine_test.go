package runtime_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/autopilot/internal/runtime"
	"github.com/aretw0/autopilot/pkg/adapters/httpclient"
	"github.com/aretw0/autopilot/pkg/adapters/memory"
	"github.com/aretw0/autopilot/pkg/dispatch"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/interpret"
	"github.com/aretw0/autopilot/pkg/judge"
	"github.com/aretw0/autopilot/pkg/ports"
	"github.com/aretw0/autopilot/pkg/prompt"
	"github.com/aretw0/autopilot/pkg/state"
	"github.com/aretw0/autopilot/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listPosts = `{"action": {"method": "GET", "url": "/api/posts"}, "step_result": "see the posts", "next_step": "open the first post", "done": false}`

// scripted replays replies in order and repeats the last one.
type scripted struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	prompts []string
}

func (s *scripted) Complete(ctx context.Context, p string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, p)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], err
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func verdicts(v ...bool) *scripted {
	s := &scripted{}
	for _, b := range v {
		if b {
			s.replies = append(s.replies, `{"should_complete": true, "reason": "done"}`)
		} else {
			s.replies = append(s.replies, `{"should_complete": false, "reason": "not yet"}`)
		}
	}
	return s
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delays = append(l.delays, d)
	return nil
}

func (l *sleepLog) Delays() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.delays...)
}

var pacing = runtime.Config{
	MaxIterations: 3,
	ContinueDelay: 8 * time.Second,
	TurnoverDelay: 15 * time.Second,
	ErrorBackoff:  10 * time.Second,
}

type fixture struct {
	store *state.Store
	model *scripted
	judge *scripted
	hits  *atomic.Int32
}

func newFixture(t *testing.T, taskText string, model, judgeModel *scripted) (*fixture, runtime.Components) {
	t.Helper()
	hits := new(atomic.Int32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"code":10000,"data":[{"id":1,"title":"hello"}]}`))
	}))
	t.Cleanup(srv.Close)

	store := state.New(memory.NewStore())
	c := runtime.Components{
		Store:       store,
		Tasks:       tasks.New(memory.NewSource(taskText)),
		Prompts:     prompt.New(memory.NewSource("GET /api/posts lists posts")),
		Model:       model,
		Interpreter: interpret.New(),
		Dispatcher:  dispatch.New(httpclient.New(), store, dispatch.WithBaseURL(srv.URL)),
		Judge:       judge.New(judgeModel),
	}
	return &fixture{store: store, model: model, judge: judgeModel, hits: hits}, c
}

func TestNewEngine_RequiresComponents(t *testing.T) {
	_, err := runtime.NewEngine(runtime.Components{})
	assert.Error(t, err)
}

func TestEngine_StopsAtIterationCeiling(t *testing.T) {
	model := &scripted{replies: []string{listPosts}}
	f, c := newFixture(t, "browse posts", model, verdicts(false))
	sleeps := &sleepLog{}

	engine, err := runtime.NewEngine(c, runtime.WithConfig(pacing), runtime.WithSleep(sleeps.sleep))
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	st := engine.Status(context.Background())
	assert.Equal(t, runtime.PhaseStopped, st.Phase)
	assert.Equal(t, runtime.ReasonCeiling, st.StopReason)
	assert.Equal(t, 3, st.Iterations)
	assert.Equal(t, 3, f.model.Calls())
	assert.EqualValues(t, 3, f.hits.Load())
	// no cooldown after the last iteration
	assert.Equal(t, []time.Duration{8 * time.Second, 8 * time.Second}, sleeps.Delays())
	assert.Equal(t, domain.Task("browse posts"), st.Task)
	assert.Equal(t, 3, st.Step)
}

func TestEngine_CompletionUsesTurnoverDelayAndPicksNewTask(t *testing.T) {
	model := &scripted{replies: []string{listPosts}}
	f, c := newFixture(t, "browse posts", model, verdicts(false, true, false))
	sleeps := &sleepLog{}

	var selected, completed []domain.Task
	hooks := domain.LifecycleHooks{
		OnTaskSelected:  func(_ context.Context, e *domain.TaskEvent) { selected = append(selected, e.Task) },
		OnTaskCompleted: func(_ context.Context, e *domain.TaskEvent) { completed = append(completed, e.Task) },
	}

	engine, err := runtime.NewEngine(c,
		runtime.WithConfig(pacing),
		runtime.WithSleep(sleeps.sleep),
		runtime.WithLifecycleHooks(hooks),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	assert.Equal(t, []time.Duration{8 * time.Second, 15 * time.Second}, sleeps.Delays())
	assert.Equal(t, []domain.Task{"browse posts", "browse posts"}, selected)
	assert.Equal(t, []domain.Task{"browse posts"}, completed)

	// the third iteration started the task over at step 0
	assert.Equal(t, 1, f.store.Step(context.Background()))
	assert.Contains(t, f.model.prompts[2], "browse posts")
}

func TestEngine_JudgeOverridesSelfReport(t *testing.T) {
	claimsDone := `{"action": {"method": "GET", "url": "/api/posts"}, "step_result": "posts listed", "done": true}`
	model := &scripted{replies: []string{claimsDone}}
	f, c := newFixture(t, "publish a post", model, verdicts(false))

	var got []*domain.VerdictEvent
	engine, err := runtime.NewEngine(c,
		runtime.WithConfig(runtime.Config{MaxIterations: 1}),
		runtime.WithSleep((&sleepLog{}).sleep),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnVerdict: func(_ context.Context, e *domain.VerdictEvent) { got = append(got, e) },
		}),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	require.Len(t, got, 1)
	assert.True(t, got[0].SelfComplete)
	assert.False(t, got[0].Verdict.ShouldComplete)

	task, ok := f.store.CurrentTask(context.Background())
	assert.True(t, ok)
	assert.Equal(t, domain.Task("publish a post"), task)
	assert.Equal(t, "posts listed", f.store.StepResult(context.Background()))

	st := engine.Status(context.Background())
	require.NotNil(t, st.LastVerdict)
	assert.False(t, st.LastVerdict.ShouldComplete)
}

func TestEngine_UnrecognizedActionIsNoOpTurn(t *testing.T) {
	model := &scripted{replies: []string{`{"action": "think about it", "next_step": "look at the posts"}`}}
	f, c := newFixture(t, "browse posts", model, verdicts(false))

	var errs int
	engine, err := runtime.NewEngine(c,
		runtime.WithConfig(runtime.Config{MaxIterations: 1}),
		runtime.WithSleep((&sleepLog{}).sleep),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnError: func(context.Context, *domain.ErrorEvent) { errs++ },
		}),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	ctx := context.Background()
	assert.Zero(t, f.hits.Load())
	assert.Zero(t, errs)
	assert.Equal(t, 1, f.store.Step(ctx))
	assert.Equal(t, "look at the posts", f.store.NextStep(ctx))
	assert.Equal(t, 1, f.judge.Calls())
}

func TestEngine_NullActionSkipsRepair(t *testing.T) {
	model := &scripted{replies: []string{`{"action": null, "next_step": "wait for review", "done": "no"}`}}
	f, c := newFixture(t, "browse posts", model, verdicts(false))
	repair := &scripted{replies: []string{`{"t": {"steps": [{"action": {"method": "GET", "url": "/api/posts"}}]}}`}}
	c.Interpreter = interpret.New(interpret.WithRepair(repair))

	engine, err := runtime.NewEngine(c,
		runtime.WithConfig(runtime.Config{MaxIterations: 1}),
		runtime.WithSleep((&sleepLog{}).sleep),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	ctx := context.Background()
	assert.Zero(t, repair.Calls())
	assert.Zero(t, f.hits.Load())
	assert.Equal(t, 1, f.store.Step(ctx))
	assert.Equal(t, "wait for review", f.store.NextStep(ctx))
	assert.Equal(t, 1, f.judge.Calls())
}

func TestEngine_ModelFailureBacksOffAndCounts(t *testing.T) {
	model := &scripted{replies: []string{"", listPosts}, errs: []error{errors.New("upstream 503")}}
	f, c := newFixture(t, "browse posts", model, verdicts(false))
	sleeps := &sleepLog{}

	var failures []error
	engine, err := runtime.NewEngine(c,
		runtime.WithConfig(runtime.Config{MaxIterations: 2, ContinueDelay: time.Second, ErrorBackoff: 10 * time.Second}),
		runtime.WithSleep(sleeps.sleep),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnError: func(_ context.Context, e *domain.ErrorEvent) { failures = append(failures, e.Err) },
		}),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	require.Len(t, failures, 1)
	assert.ErrorContains(t, failures[0], "upstream 503")
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeps.Delays())
	assert.Equal(t, 2, engine.Status(context.Background()).Iterations)
	assert.EqualValues(t, 1, f.hits.Load())
	assert.Equal(t, 1, f.judge.Calls())
}

func TestEngine_StopsWhenNoTask(t *testing.T) {
	model := &scripted{replies: []string{listPosts}}
	f, c := newFixture(t, "   ；  ", model, verdicts(false))

	var reason string
	engine, err := runtime.NewEngine(c,
		runtime.WithConfig(pacing),
		runtime.WithSleep((&sleepLog{}).sleep),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnStop: func(_ context.Context, e *domain.StopEvent) { reason = e.Reason },
		}),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	assert.Equal(t, runtime.ReasonNoTask, reason)
	assert.Zero(t, f.model.Calls())
}

func TestEngine_StartClearsState(t *testing.T) {
	model := &scripted{replies: []string{listPosts}}
	f, c := newFixture(t, "", model, verdicts(false))
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, "stale", "value"))
	require.NoError(t, f.store.BeginTask(ctx, "old task"))

	engine, err := runtime.NewEngine(c, runtime.WithSleep((&sleepLog{}).sleep))
	require.NoError(t, err)
	require.NoError(t, engine.Run(ctx))

	assert.False(t, f.store.Has(ctx, "stale"))
	_, ok := f.store.CurrentTask(ctx)
	assert.False(t, ok)
}

// gatedModel blocks each call until released and then replies with listPosts.
type gatedModel struct {
	entered chan struct{}
	release chan struct{}
}

func (m *gatedModel) Complete(ctx context.Context, p string) (string, error) {
	select {
	case m.entered <- struct{}{}:
	default:
	}
	select {
	case <-m.release:
		return listPosts, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestEngine_StopLetsInFlightTurnFinish(t *testing.T) {
	f, c := newFixture(t, "browse posts", &scripted{replies: []string{listPosts}}, verdicts(false))
	model := &gatedModel{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c.Model = model
	sleeps := &sleepLog{}

	engine, err := runtime.NewEngine(c, runtime.WithConfig(pacing), runtime.WithSleep(sleeps.sleep))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))
	select {
	case <-model.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("engine never called the model")
	}
	require.NoError(t, engine.Stop())
	close(model.release)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Wait(waitCtx))

	st := engine.Status(ctx)
	assert.Equal(t, runtime.ReasonRequested, st.StopReason)
	assert.Equal(t, 1, st.Iterations)
	assert.Equal(t, int32(1), f.hits.Load())
	assert.True(t, f.store.Has(ctx, domain.KeyLastResponse))
	assert.Equal(t, 1, f.store.Step(ctx))
	assert.Equal(t, 1, f.judge.Calls())
	assert.Empty(t, sleeps.Delays())
}

func TestEngine_StopInterruptsCooldown(t *testing.T) {
	model := &scripted{replies: []string{listPosts}}
	_, c := newFixture(t, "browse posts", model, verdicts(false))

	sleeping := make(chan struct{}, 1)
	block := func(ctx context.Context, d time.Duration) error {
		select {
		case sleeping <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}

	var runIDs []string
	engine, err := runtime.NewEngine(c,
		runtime.WithConfig(pacing),
		runtime.WithSleep(block),
		runtime.WithRunIDGenerator(func() string { return "run-1" }),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnStop: func(_ context.Context, e *domain.StopEvent) { runIDs = append(runIDs, e.RunID) },
		}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, engine.Stop(), domain.ErrNotRunning)
	require.NoError(t, engine.Start(ctx))
	assert.ErrorIs(t, engine.Start(ctx), domain.ErrAlreadyRunning)
	assert.True(t, engine.Running())

	select {
	case <-sleeping:
	case <-time.After(5 * time.Second):
		t.Fatal("engine never reached its cooldown")
	}
	require.NoError(t, engine.Stop())

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Wait(waitCtx))

	st := engine.Status(ctx)
	assert.False(t, st.Running)
	assert.Equal(t, runtime.ReasonRequested, st.StopReason)
	assert.Equal(t, 1, st.Iterations)
	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, []string{"run-1"}, runIDs)

	// a stopped engine can be started again
	require.NoError(t, engine.Start(ctx))
	require.NoError(t, engine.Stop())
	require.NoError(t, engine.Wait(waitCtx))
}

func TestEngine_RunAbortsOnCancel(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	hang := ports.ModelFunc(func(ctx context.Context, p string) (string, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", ctx.Err()
	})
	_, c := newFixture(t, "browse posts", &scripted{replies: []string{listPosts}}, verdicts(false))
	c.Model = hang

	engine, err := runtime.NewEngine(c, runtime.WithSleep((&sleepLog{}).sleep))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	require.NoError(t, engine.Run(ctx))
	assert.Equal(t, runtime.ReasonCancelled, engine.Status(context.Background()).StopReason)
}

func TestEngine_ActionHooksCarryOutcome(t *testing.T) {
	model := &scripted{replies: []string{listPosts}}
	_, c := newFixture(t, "browse posts", model, verdicts(false))

	var events []*domain.ActionEvent
	engine, err := runtime.NewEngine(c,
		runtime.WithConfig(runtime.Config{MaxIterations: 1}),
		runtime.WithSleep((&sleepLog{}).sleep),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnActionDispatched: func(_ context.Context, e *domain.ActionEvent) { events = append(events, e) },
		}),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Run(context.Background()))

	require.Len(t, events, 1)
	assert.Equal(t, "GET", events[0].Method)
	assert.Equal(t, "/api/posts", events[0].URL)
	assert.Equal(t, http.StatusOK, events[0].Status)
	assert.False(t, events[0].IsError)
	assert.Equal(t, 1, events[0].Iteration)
}
