// Package metrics holds the Prometheus collectors for sweep runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the sweep collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Tasks        *prometheus.CounterVec
	TaskDuration prometheus.Histogram
	InFlight     prometheus.Gauge
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid clashing on the default
// registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wfsweep_tasks_total",
				Help: "Sweep tasks by final status.",
			},
			[]string{"status"},
		),
		TaskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wfsweep_task_duration_seconds",
				Help:    "Wall-clock time of a single (fold, scenario) task.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wfsweep_tasks_in_flight",
				Help: "Tasks currently executing.",
			},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wfsweep_objective_cache_hits_total",
				Help: "Objective evaluations served from cache.",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wfsweep_objective_cache_misses_total",
				Help: "Objective evaluations that required a sweep.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Tasks, m.TaskDuration, m.InFlight, m.CacheHits, m.CacheMisses)
	}
	return m
}

// TaskStarted marks a task's evaluator as in flight.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// TaskFinished records a task's final status and duration.
func (m *Metrics) TaskFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(status).Inc()
	m.TaskDuration.Observe(d.Seconds())
}

// TaskReleased marks a task's evaluator as returned. For a timed-out task
// this happens after TaskFinished.
func (m *Metrics) TaskReleased() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

// TaskCancelled counts a task that was never dispatched.
func (m *Metrics) TaskCancelled() {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues("cancelled").Inc()
}

// ObjectiveHit implements objective.Observer.
func (m *Metrics) ObjectiveHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// ObjectiveMiss implements objective.Observer.
func (m *Metrics) ObjectiveMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}
