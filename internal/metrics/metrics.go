// Package metrics exposes frontier run progress to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/copyleftdev/augmecon/internal/optimization"
	"github.com/copyleftdev/augmecon/internal/optimization/augmecon"
)

const namespace = "augmecon"

// Metrics holds the collectors shared by all runs of a process.
type Metrics struct {
	solves     *prometheus.CounterVec
	skipped    prometheus.Counter
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	solutions  prometheus.Histogram
	activeRuns prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		solves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Model solves by run stage and termination status.",
		}, []string{"stage", "status"}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_points_skipped_total",
			Help:      "Grid points skipped by early exit or bypass.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished frontier runs by result.",
		}, []string{"result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of successful frontier runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		solutions: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pareto_solutions",
			Help:      "Size of the Pareto set of successful runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Frontier runs currently computing.",
		}),
	}
}

// RunStarted marks a run as active. The observer's Finished call undoes it.
func (m *Metrics) RunStarted() {
	m.activeRuns.Inc()
}

// Observer returns an augmecon.Observer feeding m. Use one per run.
func (m *Metrics) Observer() augmecon.Observer {
	return &observer{m: m}
}

type observer struct {
	m *Metrics
}

func (o *observer) Solved(stage augmecon.Stage, status optimization.Status) {
	o.m.solves.WithLabelValues(string(stage), status.String()).Inc()
}

func (o *observer) Skipped(augmecon.GridIndex) {
	o.m.skipped.Inc()
}

func (o *observer) Finished(r *augmecon.Result, err error) {
	o.m.activeRuns.Dec()
	if err != nil {
		o.m.runs.WithLabelValues("failed").Inc()
		return
	}
	o.m.runs.WithLabelValues("succeeded").Inc()
	o.m.duration.Observe(r.Duration().Seconds())
	o.m.solutions.Observe(float64(len(r.ParetoSet)))
}
