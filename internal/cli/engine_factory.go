package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/autopilot"
	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/observability"
)

// Options are the settings shared by every command.
type Options struct {
	ConfigPath string
	// LogLevel overrides log.level from the file when set.
	LogLevel string
	JSONLogs bool
}

func loadConfig(opts Options) (autopilot.Config, error) {
	cfg, err := autopilot.LoadConfig(opts.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("error loading config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.JSONLogs {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

// createPilot builds a Pilot with standard CLI conventions.
func createPilot(cfg autopilot.Config, logger *slog.Logger, extra ...autopilot.Option) (*autopilot.Pilot, error) {
	pilotOpts := []autopilot.Option{autopilot.WithLogger(logger)}

	// Debug mode traces every engine event.
	if logging.ParseLevel(cfg.Log.Level) <= slog.LevelDebug {
		pilotOpts = append(pilotOpts, autopilot.WithLifecycleHooks(observability.LogHooks(logger, slog.LevelDebug)))
	}

	pilot, err := autopilot.New(cfg, append(pilotOpts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("error initializing autopilot: %w", err)
	}
	return pilot, nil
}

// NewPilot loads the configuration and builds a Pilot plus its logger.
func NewPilot(opts Options, extra ...autopilot.Option) (*autopilot.Pilot, *slog.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	logger := createLogger(cfg.Log.Level, cfg.Log.JSON)
	pilot, err := createPilot(cfg, logger, extra...)
	if err != nil {
		return nil, nil, err
	}
	return pilot, logger, nil
}
