package learning

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the learning engine.
type Metrics struct {
	RecordsTotal     *prometheus.CounterVec
	SuggestionsTotal *prometheus.CounterVec
	Patterns         prometheus.Gauge
	RebuildDuration  prometheus.Histogram
}

// NewMetrics registers the learning metrics once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RecordsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_records_total",
					Help: "Correction records applied by kind",
				},
				[]string{"kind"},
			),
			SuggestionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_suggestion_queries_total",
					Help: "Suggestion queries by result",
				},
				[]string{"result"},
			),
			Patterns: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "learning_patterns",
				Help: "Patterns currently in the index",
			}),
			RebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "learning_rebuild_duration_seconds",
				Help:    "Wall time of pattern rebuilds",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return globalMetrics
}
