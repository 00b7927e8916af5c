package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/autopilot"
	httpAdapter "github.com/aretw0/autopilot/pkg/adapters/http"
	"github.com/aretw0/autopilot/pkg/domain"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions configures the administrative server.
type ServeOptions struct {
	Options
	// Addr overrides server.addr when set.
	Addr string
	// Autostart forces autostart.enabled.
	Autostart bool
}

// Serve exposes the administrative API until a signal arrives.
func Serve(opts ServeOptions) error {
	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	return serve(sigCtx, opts)
}

func serve(ctx context.Context, opts ServeOptions, extra ...autopilot.Option) error {
	cfg, err := loadConfig(opts.Options)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.Autostart {
		cfg.Autostart.Enabled = true
	}
	logger := createLogger(cfg.Log.Level, cfg.Log.JSON)

	streams := httpAdapter.NewStreamManager(logger)
	pilot, err := createPilot(cfg, logger, append(extra, autopilot.WithLifecycleHooks(streams.Hooks()))...)
	if err != nil {
		return err
	}
	defer pilot.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           buildHandler(pilot, cfg, streams, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("admin server listening", "addr", srv.Addr, "base_path", httpAdapter.BasePath)
		serverErrors <- srv.ListenAndServe()
	}()

	if cfg.Autostart.Enabled {
		go autostart(ctx, pilot, cfg.Autostart.Delay, logger)
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	printSystemMessage(os.Stdout, "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
		_ = srv.Close()
	}
	if err := pilot.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		return err
	}
	if err := pilot.Wait(shutdownCtx); err != nil {
		logger.Warn("loop did not stop in time, aborting", "error", err)
	}
	printSystemMessage(os.Stdout, "Autopilot server stopped gracefully.")
	return nil
}

func buildHandler(pilot *autopilot.Pilot, cfg autopilot.Config, streams *httpAdapter.StreamManager, logger *slog.Logger) http.Handler {
	handlerOpts := []httpAdapter.Option{
		httpAdapter.WithLogger(logger),
		httpAdapter.WithEvents(streams),
	}
	if cfg.Server.Metrics {
		handlerOpts = append(handlerOpts, httpAdapter.WithMetrics(pilot.MetricsHandler()))
	}
	return httpAdapter.NewHandler(pilot, handlerOpts...)
}

type starter interface {
	Start(ctx context.Context) error
}

// autostart launches the loop once delay has elapsed, unless ctx ends first.
func autostart(ctx context.Context, p starter, delay time.Duration, logger *slog.Logger) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	err := p.Start(context.WithoutCancel(ctx))
	switch {
	case err == nil:
		logger.Info("autostart: loop started", "delay", delay)
	case errors.Is(err, domain.ErrAlreadyRunning):
		logger.Info("autostart: loop already running")
	default:
		logger.Error("autostart failed", "error", err)
	}
}
