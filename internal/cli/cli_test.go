package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/autopilot"
	"github.com/aretw0/autopilot/internal/logging"
	httpAdapter "github.com/aretw0/autopilot/pkg/adapters/http"
	"github.com/aretw0/autopilot/pkg/adapters/memory"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autopilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func constant(reply string) ports.Model {
	return ports.ModelFunc(func(ctx context.Context, prompt string) (string, error) {
		return reply, nil
	})
}

func offline() []autopilot.Option {
	return []autopilot.Option{
		autopilot.WithTaskSource(memory.NewSource("publish a post")),
		autopilot.WithCapabilityCatalog(memory.NewSource("POST /api/posts")),
		autopilot.WithModel(constant(`{"action": "wait", "done": false}`)),
		autopilot.WithJudgeModel(constant(`{"should_complete": false, "reason": "not yet"}`)),
		autopilot.WithSleep(func(context.Context, time.Duration) error { return nil }),
	}
}

func noSignal() os.Signal { return nil }

func TestLoadConfig(t *testing.T) {
	t.Run("Flags override the file", func(t *testing.T) {
		path := writeConfig(t, "log:\n  level: warn\n")
		cfg, err := loadConfig(Options{ConfigPath: path, LogLevel: "debug", JSONLogs: true})
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.JSON)
	})

	t.Run("Missing file falls back to defaults", func(t *testing.T) {
		cfg, err := loadConfig(Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
		require.NoError(t, err)
		assert.Equal(t, autopilot.DefaultConfig().Server.Addr, cfg.Server.Addr)
	})

	t.Run("Invalid file is reported", func(t *testing.T) {
		path := writeConfig(t, "store:\n  driver: etcd\n")
		_, err := loadConfig(Options{ConfigPath: path})
		assert.ErrorContains(t, err, "etcd")
	})
}

func TestRun_StopsAtIterationLimit(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_iterations: 2\nlog:\n  level: error\n")
	var out bytes.Buffer

	err := run(context.Background(), RunOptions{Options: Options{ConfigPath: path}, Output: &out}, noSignal, offline()...)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "max 2 iterations")
	assert.Contains(t, out.String(), "Stopped after 2 iterations: iteration limit reached.")
}

func TestRun_FlagOverridesIterationLimit(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_iterations: 50\nlog:\n  level: error\n")
	var out bytes.Buffer

	err := run(context.Background(), RunOptions{Options: Options{ConfigPath: path}, MaxIterations: 1, Output: &out}, noSignal, offline()...)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Stopped after 1 iterations")
}

func TestRun_InterruptExitsCleanly(t *testing.T) {
	path := writeConfig(t, "log:\n  level: error\n")
	var out bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, RunOptions{Options: Options{ConfigPath: path}, Output: &out},
		func() os.Signal { return os.Interrupt }, offline()...)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Interrupted after")
}

func TestStateCommands_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeConfig(t, fmt.Sprintf("store:\n  driver: redis\n  redis:\n    addr: %s\nlog:\n  level: error\n", mr.Addr()))
	var out bytes.Buffer
	opts := StateOptions{Options: Options{ConfigPath: path}, Output: &out}

	require.NoError(t, StateSet(opts, domain.KeyCurrentTask, "publish a post"))
	assert.Equal(t, "publish a post", mr.HGet("autopilot:state", domain.KeyCurrentTask))

	out.Reset()
	require.NoError(t, StateGet(opts, domain.KeyCurrentTask))
	assert.Equal(t, "publish a post\n", out.String())

	out.Reset()
	require.NoError(t, StateGet(opts, ""))
	assert.Contains(t, out.String(), `"current_task": "publish a post"`)

	require.NoError(t, StateClear(opts, domain.KeyCurrentTask))
	assert.ErrorContains(t, StateGet(opts, domain.KeyCurrentTask), "not found")

	require.NoError(t, StateSet(opts, "a", "1"))
	require.NoError(t, StateClear(opts, ""))
	assert.False(t, mr.Exists("autopilot:state"))
}

type countingStarter struct {
	started chan struct{}
}

func (c *countingStarter) Start(ctx context.Context) error {
	close(c.started)
	return nil
}

func TestAutostart(t *testing.T) {
	t.Run("Starts after the delay", func(t *testing.T) {
		s := &countingStarter{started: make(chan struct{})}
		autostart(context.Background(), s, 10*time.Millisecond, logging.NewNop())
		select {
		case <-s.started:
		default:
			t.Fatal("loop was not started")
		}
	})

	t.Run("Cancelled before the delay", func(t *testing.T) {
		s := &countingStarter{started: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		autostart(ctx, s, time.Hour, logging.NewNop())
		select {
		case <-s.started:
			t.Fatal("loop started after cancellation")
		default:
		}
	})
}

func TestBuildHandler(t *testing.T) {
	cfg := autopilot.DefaultConfig()
	pilot, err := createPilot(cfg, logging.NewNop(), offline()...)
	require.NoError(t, err)
	defer pilot.Close()
	streams := httpAdapter.NewStreamManager(nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	buildHandler(pilot, cfg, streams, logging.NewNop()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "autopilot_iterations_total")

	req = httptest.NewRequest("GET", httpAdapter.BasePath+"/status", nil)
	w = httptest.NewRecorder()
	buildHandler(pilot, cfg, streams, logging.NewNop()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phase":"idle"`)

	cfg.Server.Metrics = false
	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	buildHandler(pilot, cfg, streams, logging.NewNop()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePilot_DebugTracesEvents(t *testing.T) {
	cfg := autopilot.DefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Engine.MaxIterations = 1
	var buf bytes.Buffer

	pilot, err := createPilot(cfg, logging.NewWithWriter(&buf, slog.LevelDebug, true), offline()...)
	require.NoError(t, err)
	defer pilot.Close()

	require.NoError(t, pilot.Run(context.Background()))
	assert.Contains(t, buf.String(), `"msg":"iteration_start"`)
	assert.Contains(t, buf.String(), `"msg":"stop"`)
}
