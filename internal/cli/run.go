package cli

import (
	"context"
	"io"
	"os"

	"github.com/aretw0/autopilot"
)

// RunOptions configures a foreground run.
type RunOptions struct {
	Options
	// MaxIterations overrides engine.max_iterations when positive.
	MaxIterations int
	Output        io.Writer
}

// Execute runs the loop in the foreground until it stops on its own or a signal arrives.
func Execute(opts RunOptions) error {
	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	return run(sigCtx, opts, sigCtx.Signal)
}

func run(ctx context.Context, opts RunOptions, signal func() os.Signal, extra ...autopilot.Option) error {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	cfg, err := loadConfig(opts.Options)
	if err != nil {
		return err
	}
	if opts.MaxIterations > 0 {
		cfg.Engine.MaxIterations = opts.MaxIterations
	}
	logger := createLogger(cfg.Log.Level, cfg.Log.JSON)

	pilot, err := createPilot(cfg, logger, extra...)
	if err != nil {
		return err
	}
	defer pilot.Close()

	printSystemMessage(out, "Autopilot %s running against %s (max %d iterations).",
		autopilot.Version, cfg.Transport.BaseURL, pilot.Status(ctx).MaxIter)

	err = pilot.Run(ctx)
	logCompletion(out, pilot.Status(context.WithoutCancel(ctx)), signal())
	return handleExecutionError(err)
}
