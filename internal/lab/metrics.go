package lab

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the step counters exported by a session.
type Metrics struct {
	Steps        prometheus.Counter
	Commits      prometheus.Counter
	StepDuration prometheus.Histogram
	LiveCells    prometheus.Gauge
}

// NewMetrics builds the session metrics and registers them with reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neurolab_steps_total",
			Help: "Completed network steps.",
		}),
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neurolab_commits_total",
			Help: "Weight commits applied after steps.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "neurolab_step_duration_seconds",
			Help:    "Wall time of one full network step.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		LiveCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neurolab_live_cells",
			Help: "Live cells in the session network.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Steps, m.Commits, m.StepDuration, m.LiveCells)
	}
	return m
}
