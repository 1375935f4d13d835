package extraction

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the orchestrator.
type Metrics struct {
	AttemptsTotal *prometheus.CounterVec
	CostTotal     *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
}

// NewMetrics registers the orchestrator metrics once per process.
//
// Metrics:
//   - extraction_attempts_total{provider,outcome}
//   - extraction_cost_usd_total{provider}
//   - extraction_runs_total{strategy,status}
//   - extraction_run_duration_seconds{strategy}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AttemptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "extraction_attempts_total",
					Help: "Provider attempts by outcome",
				},
				[]string{"provider", "outcome"},
			),
			CostTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "extraction_cost_usd_total",
					Help: "Accumulated provider cost in USD",
				},
				[]string{"provider"},
			),
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "extraction_runs_total",
					Help: "Orchestration runs by terminal status",
				},
				[]string{"strategy", "status"},
			),
			RunDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "extraction_run_duration_seconds",
					Help:    "Wall time of orchestration runs",
					Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"strategy"},
			),
		}
	})
	return globalMetrics
}
