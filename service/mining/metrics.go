package mining

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the mining Prometheus collectors.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec   // kind, status
	RunDuration     *prometheus.HistogramVec // kind
	RulesProduced   *prometheus.HistogramVec // kind
	CacheHitsTotal  prometheus.Counter
	CacheMissTotal  prometheus.Counter
	PublishFailures prometheus.Counter
}

// NewMetrics registers the collectors once per process.
//
//   - arm_runs_total{kind,status}
//   - arm_run_duration_seconds{kind}
//   - arm_rules_produced{kind}
//   - arm_cache_hits_total, arm_cache_misses_total
//   - arm_event_publish_failures_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "arm_runs_total",
					Help: "Total number of mining runs by kind and final status",
				},
				[]string{"kind", "status"},
			),
			RunDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "arm_run_duration_seconds",
					Help:    "Wall time of mining runs",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
				},
				[]string{"kind"},
			),
			RulesProduced: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "arm_rules_produced",
					Help:    "Number of ranked rules stored per run",
					Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
				},
				[]string{"kind"},
			),
			CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "arm_cache_hits_total",
				Help: "Runs answered from the result cache",
			}),
			CacheMissTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "arm_cache_misses_total",
				Help: "Runs that had to be mined",
			}),
			PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "arm_event_publish_failures_total",
				Help: "Run events that could not be delivered",
			}),
		}
	})
	return globalMetrics
}
