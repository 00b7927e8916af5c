package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/autopilot/internal/config"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/state"
)

// StateOptions addresses the configured state store from the command line.
type StateOptions struct {
	Options
	Output io.Writer
}

func (o StateOptions) out() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

func withStore(opts StateOptions, fn func(ctx context.Context, store *state.Store) error) error {
	cfg, err := loadConfig(opts.Options)
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverRedis {
		fmt.Fprintln(os.Stderr, "warning: the memory store lives inside the serving process; point store.driver at redis to share state")
	}
	pilot, err := createPilot(cfg, createLogger(cfg.Log.Level, cfg.Log.JSON))
	if err != nil {
		return err
	}
	defer pilot.Close()

	return fn(context.Background(), pilot.State())
}

// StateGet prints one key, or the whole state as JSON when key is empty.
func StateGet(opts StateOptions, key string) error {
	return withStore(opts, func(ctx context.Context, store *state.Store) error {
		if key == "" {
			snap, err := store.Snapshot(ctx)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out(), string(b))
			return nil
		}
		val, err := store.Get(ctx, key)
		if errors.Is(err, domain.ErrKeyNotFound) {
			return fmt.Errorf("state %q not found", key)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(opts.out(), val)
		return nil
	})
}

// StateSet writes one key.
func StateSet(opts StateOptions, key, value string) error {
	return withStore(opts, func(ctx context.Context, store *state.Store) error {
		if err := store.Set(ctx, key, value); err != nil {
			return err
		}
		printSystemMessage(opts.out(), "%s set.", key)
		return nil
	})
}

// StateClear deletes one key, or every key when key is empty.
func StateClear(opts StateOptions, key string) error {
	return withStore(opts, func(ctx context.Context, store *state.Store) error {
		if key == "" {
			if err := store.Clear(ctx); err != nil {
				return err
			}
			printSystemMessage(opts.out(), "State cleared.")
			return nil
		}
		if err := store.Remove(ctx, key); err != nil {
			return err
		}
		printSystemMessage(opts.out(), "%s removed.", key)
		return nil
	})
}
