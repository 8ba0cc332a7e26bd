package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records dispatch outcomes.
type Metrics struct {
	// RunsTotal counts finished tasks by status (ok, failed, skipped).
	RunsTotal *prometheus.CounterVec
	// RunDuration tracks the wall time of executed tasks.
	RunDuration prometheus.Histogram
	// InFlight is the number of tasks currently executing.
	InFlight prometheus.Gauge
}

// NewMetrics creates the dispatch metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paramsweep_runs_total",
			Help: "Total simulation runs by status",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paramsweep_run_duration_seconds",
			Help:    "Simulation run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16), // 100ms to ~55min
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "paramsweep_runs_in_flight",
			Help: "Simulation runs currently executing",
		}),
	}
}
