// Package metrics exposes Prometheus collectors fed by engine lifecycle hooks.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/autopilot/pkg/domain"
)

// Collectors groups the autopilot metrics.
type Collectors struct {
	Iterations     prometheus.Counter
	Actions        *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	Verdicts       *prometheus.CounterVec
	TasksCompleted prometheus.Counter
	Errors         prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
// A nil reg means a fresh private registry.
func New(reg *prometheus.Registry) *Collectors {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collectors{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_iterations_total",
			Help: "Total number of loop iterations started",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopilot_actions_total",
			Help: "Dispatched actions by method and outcome",
		}, []string{"method", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autopilot_action_duration_seconds",
			Help:    "Duration of dispatched actions",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopilot_verdicts_total",
			Help: "Completion verdicts by result",
		}, []string{"complete"}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_tasks_completed_total",
			Help: "Tasks the judge declared complete",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_errors_total",
			Help: "Iterations that failed",
		}),
		gatherer: reg,
	}
	reg.MustRegister(c.Iterations, c.Actions, c.ActionDuration, c.Verdicts, c.TasksCompleted, c.Errors)
	return c
}

// Hooks returns lifecycle hooks that feed the collectors.
func (c *Collectors) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIterationStart: func(context.Context, *domain.TaskEvent) {
			c.Iterations.Inc()
		},
		OnActionDispatched: func(_ context.Context, e *domain.ActionEvent) {
			c.Actions.WithLabelValues(e.Method, Outcome(e.Status, e.IsError)).Inc()
			c.ActionDuration.WithLabelValues(e.Method).Observe(e.Duration.Seconds())
		},
		OnVerdict: func(_ context.Context, e *domain.VerdictEvent) {
			c.Verdicts.WithLabelValues(strconv.FormatBool(e.Verdict.ShouldComplete)).Inc()
		},
		OnTaskCompleted: func(context.Context, *domain.TaskEvent) {
			c.TasksCompleted.Inc()
		},
		OnError: func(context.Context, *domain.ErrorEvent) {
			c.Errors.Inc()
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Outcome buckets an action result into a status class label.
func Outcome(status int, isError bool) string {
	switch {
	case status == 0:
		return "transport_error"
	case status >= 200 && status < 300 && !isError:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	}
	return "error"
}
