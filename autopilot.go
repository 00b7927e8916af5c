package autopilot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/autopilot/internal/config"
	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/internal/metrics"
	"github.com/aretw0/autopilot/internal/runtime"
	"github.com/aretw0/autopilot/pkg/adapters/file"
	"github.com/aretw0/autopilot/pkg/adapters/httpclient"
	"github.com/aretw0/autopilot/pkg/adapters/memory"
	"github.com/aretw0/autopilot/pkg/adapters/openai"
	"github.com/aretw0/autopilot/pkg/adapters/redis"
	"github.com/aretw0/autopilot/pkg/dispatch"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/interpret"
	"github.com/aretw0/autopilot/pkg/judge"
	"github.com/aretw0/autopilot/pkg/persistence/middleware"
	"github.com/aretw0/autopilot/pkg/ports"
	"github.com/aretw0/autopilot/pkg/prompt"
	"github.com/aretw0/autopilot/pkg/state"
	"github.com/aretw0/autopilot/pkg/tasks"
)

// Version is the release of the library and CLI.
const Version = "0.1.0"

// Config is the full configuration of a Pilot.
type Config = config.Config

// Status is a point-in-time view of the loop.
type Status = runtime.Status

// DefaultConfig returns a configuration with every knob at its default.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML or JSON file over the defaults and applies environment overrides.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Pilot is the high-level entry point: a fully wired engine plus its state store.
type Pilot struct {
	cfg     Config
	engine  *runtime.Engine
	store   *state.Store
	kv      ports.KVStore
	tasks   *tasks.Source
	metrics *metrics.Collectors
	logger  *slog.Logger
	closers []io.Closer

	hooks      domain.LifecycleHooks
	model      ports.Model
	judgeModel ports.Model
	transport  ports.Transport
	taskText   ports.TextSource
	catalog    ports.TextSource
	sleep      runtime.SleepFunc
}

// Option defines a functional option for configuring the Pilot.
type Option func(*Pilot)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pilot) {
		p.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Pilot) {
		p.hooks = p.hooks.Merge(hooks)
	}
}

// WithStore injects a key-value store, bypassing the configured driver.
func WithStore(kv ports.KVStore) Option {
	return func(p *Pilot) {
		p.kv = kv
	}
}

// WithModel injects the primary model. It also serves as judge unless WithJudgeModel is given.
func WithModel(m ports.Model) Option {
	return func(p *Pilot) {
		p.model = m
	}
}

// WithJudgeModel injects a separate model for completion checks.
func WithJudgeModel(m ports.Model) Option {
	return func(p *Pilot) {
		p.judgeModel = m
	}
}

// WithTransport injects the transport used to reach the target application.
func WithTransport(t ports.Transport) Option {
	return func(p *Pilot) {
		p.transport = t
	}
}

// WithTaskSource injects the task catalog text, bypassing tasks.path.
func WithTaskSource(src ports.TextSource) Option {
	return func(p *Pilot) {
		p.taskText = src
	}
}

// WithCapabilityCatalog injects the capability catalog text, bypassing catalog.path.
func WithCapabilityCatalog(src ports.TextSource) Option {
	return func(p *Pilot) {
		p.catalog = src
	}
}

// WithSleep replaces the cooldown timer of the engine.
func WithSleep(fn runtime.SleepFunc) Option {
	return func(p *Pilot) {
		p.sleep = fn
	}
}

// New wires a Pilot from cfg. Injected adapters take precedence over the configured ones.
func New(cfg Config, opts ...Option) (*Pilot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	p := &Pilot{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}

	// Everything derived from cfg that can fail is resolved before the backend opens.
	mws, err := cfg.StoreMiddleware()
	if err != nil {
		return nil, err
	}
	promptPolicy, err := cfg.PromptPolicy()
	if err != nil {
		return nil, err
	}
	matchPolicy, err := cfg.MatchPolicy()
	if err != nil {
		return nil, err
	}

	if p.kv == nil {
		kv, err := p.openStore()
		if err != nil {
			return nil, err
		}
		p.kv = kv
	}
	p.store = state.New(middleware.Chain(p.kv, mws...),
		state.WithPermanentToken(cfg.Auth.PermanentToken),
		state.WithLogger(p.logger),
	)

	if p.model == nil {
		modelOpts := []openai.Option{
			openai.WithBaseURL(cfg.Model.BaseURL),
			openai.WithAPIKey(cfg.Model.APIKey),
			openai.WithModel(cfg.Model.Name),
			openai.WithTimeout(cfg.Model.Timeout),
			openai.WithMaxRetries(cfg.Model.MaxRetries),
		}
		if cfg.Model.Temperature > 0 {
			modelOpts = append(modelOpts, openai.WithTemperature(cfg.Model.Temperature))
		}
		p.model = openai.New(modelOpts...)
	}
	if p.judgeModel == nil {
		p.judgeModel = p.model
	}
	if p.transport == nil {
		p.transport = httpclient.New(
			httpclient.WithTimeout(cfg.Transport.Timeout),
			httpclient.WithRateLimit(cfg.Transport.RatePerMinute, cfg.Transport.Burst),
			httpclient.WithMaxBody(cfg.Transport.MaxBodyBytes),
		)
	}
	if p.taskText == nil {
		p.taskText = file.NewSource(cfg.Tasks.Path)
	}
	if p.catalog == nil {
		p.catalog = file.NewSource(cfg.Catalog.Path)
	}

	interpOpts := []interpret.Option{
		interpret.WithLogger(p.logger),
		interpret.WithCatalog(p.catalog),
		interpret.WithMatchPolicy(matchPolicy),
	}
	if cfg.Model.Repair {
		interpOpts = append(interpOpts, interpret.WithRepair(p.model))
	}

	p.tasks = tasks.New(p.taskText,
		tasks.WithDelimiter(cfg.Tasks.Delimiter),
		tasks.WithLogger(p.logger),
	)
	p.metrics = metrics.New(nil)

	components := runtime.Components{
		Store: p.store,
		Tasks: p.tasks,
		Prompts: prompt.New(p.catalog,
			prompt.WithPersona(cfg.Engine.Persona),
			prompt.WithPolicy(promptPolicy),
			prompt.WithLogger(p.logger),
		),
		Model:       p.model,
		Interpreter: interpret.New(interpOpts...),
		Dispatcher: dispatch.New(p.transport, p.store,
			dispatch.WithBaseURL(cfg.Transport.BaseURL),
			dispatch.WithLoginPattern(cfg.Auth.LoginPattern),
			dispatch.WithLogger(p.logger),
		),
		Judge: judge.New(p.judgeModel, judge.WithLogger(p.logger)),
	}

	engineOpts := []runtime.EngineOption{
		runtime.WithConfig(cfg.Runtime()),
		runtime.WithLogger(p.logger),
		runtime.WithLifecycleHooks(p.metrics.Hooks().Merge(p.hooks)),
	}
	if p.sleep != nil {
		engineOpts = append(engineOpts, runtime.WithSleep(p.sleep))
	}
	p.engine, err = runtime.NewEngine(components, engineOpts...)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pilot) openStore() (ports.KVStore, error) {
	switch p.cfg.Store.Driver {
	case config.DriverRedis:
		rc := p.cfg.Store.Redis
		s := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix), redis.WithTTL(rc.TTL))
		p.closers = append(p.closers, s)
		p.logger.Info("using redis state store", "addr", rc.Addr, "prefix", rc.Prefix)
		return s, nil
	case config.DriverMemory, "":
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", p.cfg.Store.Driver)
}

// Start clears the state and launches the loop in the background.
func (p *Pilot) Start(ctx context.Context) error { return p.engine.Start(ctx) }

// Run starts the loop and blocks until it stops or ctx is cancelled.
func (p *Pilot) Run(ctx context.Context) error { return p.engine.Run(ctx) }

// Stop asks the loop to halt once the current iteration completes.
func (p *Pilot) Stop() error { return p.engine.Stop() }

// Wait blocks until the current run ends or ctx is done.
func (p *Pilot) Wait(ctx context.Context) error { return p.engine.Wait(ctx) }

// Running reports whether the loop is active.
func (p *Pilot) Running() bool { return p.engine.Running() }

// Status reports the engine phase and the active task.
func (p *Pilot) Status(ctx context.Context) Status { return p.engine.Status(ctx) }

// State exposes the state store for the administrative surface.
func (p *Pilot) State() *state.Store { return p.store }

// Config returns the configuration the Pilot was built from.
func (p *Pilot) Config() Config { return p.cfg }

// Tasks lists the task catalog in order.
func (p *Pilot) Tasks(ctx context.Context) ([]domain.Task, error) { return p.tasks.All(ctx) }

// CompleteTask force-completes the active task.
func (p *Pilot) CompleteTask(ctx context.Context) error { return p.store.CompleteTask(ctx) }

// TokenStatus reports which credentials the store holds.
func (p *Pilot) TokenStatus(ctx context.Context) domain.TokenStatus { return p.store.TokenStatus(ctx) }

// Reset stops a running loop, waits for it and clears the state.
func (p *Pilot) Reset(ctx context.Context) error {
	if err := p.engine.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		return err
	}
	if err := p.engine.Wait(ctx); err != nil {
		return err
	}
	return p.store.Clear(ctx)
}

// Ping checks the state backend when it supports health checks.
func (p *Pilot) Ping(ctx context.Context) error {
	if pinger, ok := p.kv.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// MetricsHandler serves the Prometheus collectors of this Pilot.
func (p *Pilot) MetricsHandler() http.Handler { return p.metrics.Handler() }

// Close aborts a running loop and releases backend connections.
func (p *Pilot) Close() error {
	if p.engine != nil {
		p.engine.Abort()
	}
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
