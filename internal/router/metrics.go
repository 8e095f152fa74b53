package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcome label values.
const (
	outcomeFound            = "found"
	outcomeNotFound         = "not_found"
	outcomeMethodNotAllowed = "method_not_allowed"
)

// Metrics holds Prometheus metrics for route registration, dispatch and
// the pattern cache.
type Metrics struct {
	dispatchTotal      *prometheus.CounterVec
	routesRegistered   prometheus.Gauge
	patternCacheHits   prometheus.Counter
	patternCacheMisses prometheus.Counter
	patternCompiles    *prometheus.CounterVec
	patternCacheSize   prometheus.Gauge
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton router metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		dispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "router",
				Name:      "dispatch_total",
				Help:      "Total number of dispatched requests by resolution outcome",
			},
			[]string{"outcome"},
		),
		routesRegistered: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mug",
				Subsystem: "router",
				Name:      "routes_registered",
				Help:      "Number of (method, pattern) pairs registered on the most recently built router",
			},
		),
		patternCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "router",
				Name:      "pattern_cache_hits_total",
				Help:      "Total number of pattern cache hits",
			},
		),
		patternCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "router",
				Name:      "pattern_cache_misses_total",
				Help:      "Total number of pattern cache misses",
			},
		),
		patternCompiles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "router",
				Name:      "pattern_compilations_total",
				Help:      "Total number of pattern compilations by result",
			},
			[]string{"result"},
		),
		patternCacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mug",
				Subsystem: "router",
				Name:      "pattern_cache_size",
				Help:      "Current number of compiled patterns held by the pattern cache",
			},
		),
	}
}

// MustRegister registers the router collectors with the given registry.
// promauto registers with the default registry; the binary serves /metrics
// from its own registry, so the collectors are bridged here.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.dispatchTotal,
		m.routesRegistered,
		m.patternCacheHits,
		m.patternCacheMisses,
		m.patternCompiles,
		m.patternCacheSize,
	)
}

// Init pre-populates label combinations so they are exported from startup.
func (m *Metrics) Init() {
	for _, outcome := range []string{outcomeFound, outcomeNotFound, outcomeMethodNotAllowed} {
		m.dispatchTotal.WithLabelValues(outcome)
	}
	for _, result := range []string{"success", "error"} {
		m.patternCompiles.WithLabelValues(result)
	}
}
