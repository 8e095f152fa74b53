package store

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store backend label values.
const (
	backendMemory = "memory"
	backendRedis  = "redis"
)

// Metrics holds Prometheus metrics for store operations.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

var (
	storeMetrics     *Metrics
	storeMetricsOnce sync.Once
)

// GetMetrics returns the singleton store metrics instance.
func GetMetrics() *Metrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = &Metrics{
			operationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "mug",
					Subsystem: "store",
					Name:      "operations_total",
					Help:      "Total number of store operations by backend, operation and result",
				},
				[]string{"backend", "operation", "result"},
			),
			operationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "mug",
					Subsystem: "store",
					Name:      "operation_duration_seconds",
					Help:      "Store operation duration in seconds",
					Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
				},
				[]string{"backend", "operation"},
			),
		}
	})
	return storeMetrics
}

// MustRegister registers all store collectors with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
	)
}

func (m *Metrics) record(backend, operation string, err error, seconds float64) {
	result := "success"
	switch {
	case err == nil:
	case isNotFound(err):
		result = "not_found"
	default:
		result = "error"
	}
	m.operationsTotal.WithLabelValues(backend, operation, result).Inc()
	m.operationDuration.WithLabelValues(backend, operation).Observe(seconds)
}
