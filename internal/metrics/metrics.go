// Package metrics exposes orchestration counters via prometheus. All
// Recorder methods are nil-safe so callers never need to guard against
// metrics being disabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder wraps the orchestrator's prometheus instruments on a private
// registry. A nil Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	tasksDispatched prometheus.Counter
	tasksRetried    prometheus.Counter
	gateDenials     prometheus.Counter
	matchFailures   prometheus.Counter
	tasksCompleted  *prometheus.CounterVec
	plansCompleted  *prometheus.CounterVec
	tasksInflight   prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		tasksDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "tasks_dispatched_total",
			Help: "Total task dispatch attempts handed to the transport.",
		}),
		tasksRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "tasks_retried_total",
			Help: "Total task retries scheduled after failed attempts.",
		}),
		gateDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "gate_denials_total",
			Help: "Total dispatches denied by the governance gate.",
		}),
		matchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "match_failures_total",
			Help: "Total tasks that found no eligible agent.",
		}),
		tasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Total tasks reaching a terminal state, by outcome.",
		}, []string{"outcome"}),
		plansCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "plans_completed_total",
			Help: "Total plans reaching a terminal status, by status.",
		}, []string{"status"}),
		tasksInflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tasks_inflight",
			Help: "Tasks currently dispatched and awaiting completion.",
		}),
	}
}

// TaskDispatched counts one dispatch attempt.
func (r *Recorder) TaskDispatched() {
	if r == nil {
		return
	}
	r.tasksDispatched.Inc()
}

// TaskRetried counts one scheduled retry.
func (r *Recorder) TaskRetried() {
	if r == nil {
		return
	}
	r.tasksRetried.Inc()
}

// GateDenied counts one governance denial.
func (r *Recorder) GateDenied() {
	if r == nil {
		return
	}
	r.gateDenials.Inc()
}

// MatchFailed counts one task with no eligible agent.
func (r *Recorder) MatchFailed() {
	if r == nil {
		return
	}
	r.matchFailures.Inc()
}

// TaskCompleted counts one terminal task by outcome (succeeded, failed,
// cancelled).
func (r *Recorder) TaskCompleted(outcome string) {
	if r == nil {
		return
	}
	r.tasksCompleted.WithLabelValues(outcome).Inc()
}

// PlanCompleted counts one terminal plan by status.
func (r *Recorder) PlanCompleted(status string) {
	if r == nil {
		return
	}
	r.plansCompleted.WithLabelValues(status).Inc()
}

// InflightAdd moves the in-flight gauge by delta.
func (r *Recorder) InflightAdd(delta float64) {
	if r == nil {
		return
	}
	r.tasksInflight.Add(delta)
}

// Handler serves the recorder's registry in prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
