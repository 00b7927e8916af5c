package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/observability"
)

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelDebug, true)
	h := observability.LogHooks(logger, slog.LevelDebug)
	ctx := context.Background()
	b := domain.EventBase{RunID: "r1", Iteration: 2}

	h.OnActionDispatched(ctx, &domain.ActionEvent{EventBase: b, Method: "POST", URL: "/api/login", Status: 200})
	h.OnVerdict(ctx, &domain.VerdictEvent{EventBase: b, Task: "t", SelfComplete: true, Verdict: domain.Verdict{Reason: "not yet"}})
	h.OnError(ctx, &domain.ErrorEvent{EventBase: b, Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, `"msg":"action_dispatch"`)
	assert.Contains(t, out, `"url":"/api/login"`)
	assert.Contains(t, out, `"run_id":"r1"`)
	assert.Contains(t, out, `"self_complete":true`)
	assert.Contains(t, out, `"should_complete":false`)
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"err":"boom"`)
}

func TestLogHooks_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelInfo, true)
	h := observability.LogHooks(logger, slog.LevelDebug)

	h.OnStop(context.Background(), &domain.StopEvent{Reason: "done"})
	assert.Empty(t, buf.String())
}
