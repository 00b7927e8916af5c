package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/autopilot/internal/metrics"
	"github.com/aretw0/autopilot/pkg/domain"
)

func TestHooks_FeedCollectors(t *testing.T) {
	c := metrics.New(prometheus.NewRegistry())
	h := c.Hooks()
	ctx := context.Background()

	h.OnIterationStart(ctx, &domain.TaskEvent{})
	h.OnIterationStart(ctx, &domain.TaskEvent{})
	h.OnActionDispatched(ctx, &domain.ActionEvent{Method: "GET", Status: 200, Duration: 20 * time.Millisecond})
	h.OnActionDispatched(ctx, &domain.ActionEvent{Method: "POST", Status: 500, IsError: true})
	h.OnVerdict(ctx, &domain.VerdictEvent{Verdict: domain.Verdict{ShouldComplete: true}})
	h.OnTaskCompleted(ctx, &domain.TaskEvent{})
	h.OnError(ctx, &domain.ErrorEvent{})

	out := scrape(t, c)
	assert.Contains(t, out, "autopilot_iterations_total 2")
	assert.Contains(t, out, `autopilot_actions_total{method="GET",outcome="2xx"} 1`)
	assert.Contains(t, out, `autopilot_actions_total{method="POST",outcome="5xx"} 1`)
	assert.Contains(t, out, `autopilot_verdicts_total{complete="true"} 1`)
	assert.Contains(t, out, "autopilot_tasks_completed_total 1")
	assert.Contains(t, out, "autopilot_errors_total 1")
	assert.Contains(t, out, `autopilot_action_duration_seconds_count{method="GET"} 1`)
}

func scrape(t *testing.T, c *metrics.Collectors) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "transport_error", metrics.Outcome(0, true))
	assert.Equal(t, "2xx", metrics.Outcome(204, false))
	assert.Equal(t, "4xx", metrics.Outcome(404, true))
	assert.Equal(t, "3xx", metrics.Outcome(302, true))
}

func TestHandler_Exposes(t *testing.T) {
	c := metrics.New(nil)
	c.Hooks().OnIterationStart(context.Background(), &domain.TaskEvent{})

	assert.Contains(t, scrape(t, c), "autopilot_iterations_total 1")
}
