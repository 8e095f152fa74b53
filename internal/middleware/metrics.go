package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CORS classification label values.
const (
	corsPreflight         = "preflight"
	corsPreflightRejected = "preflight_rejected"
	corsSimple            = "simple"
	corsSimpleRejected    = "simple_rejected"
	corsNone              = "none"
)

// MiddlewareMetrics holds Prometheus metrics for middleware operations.
type MiddlewareMetrics struct {
	corsRequestsTotal *prometheus.CounterVec
	panicsRecovered   prometheus.Counter
	rateLimitAllowed  prometheus.Counter
	rateLimitRejected prometheus.Counter
	authTotal         *prometheus.CounterVec
}

var (
	middlewareMetrics     *MiddlewareMetrics
	middlewareMetricsOnce sync.Once
)

// GetMiddlewareMetrics returns the singleton middleware metrics instance.
func GetMiddlewareMetrics() *MiddlewareMetrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = newMiddlewareMetrics()
	})
	return middlewareMetrics
}

func newMiddlewareMetrics() *MiddlewareMetrics {
	return &MiddlewareMetrics{
		corsRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "middleware",
				Name:      "cors_requests_total",
				Help:      "Total number of requests seen by the CORS policy by classification",
			},
			[]string{"type"},
		),
		panicsRecovered: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
		),
		rateLimitAllowed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "middleware",
				Name:      "rate_limit_allowed_total",
				Help:      "Total number of requests allowed by the rate limiter",
			},
		),
		rateLimitRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "middleware",
				Name:      "rate_limit_rejected_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),
		authTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mug",
				Subsystem: "middleware",
				Name:      "auth_total",
				Help:      "Total number of authentication decisions by result",
			},
			[]string{"result"},
		),
	}
}

// MustRegister registers all middleware collectors with the given registry.
func (m *MiddlewareMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.corsRequestsTotal,
		m.panicsRecovered,
		m.rateLimitAllowed,
		m.rateLimitRejected,
		m.authTotal,
	)
}

// Init pre-populates label combinations so they are exported from startup.
func (m *MiddlewareMetrics) Init() {
	for _, t := range []string{corsPreflight, corsPreflightRejected, corsSimple, corsSimpleRejected, corsNone} {
		m.corsRequestsTotal.WithLabelValues(t)
	}
	for _, r := range []string{"allowed", "denied"} {
		m.authTotal.WithLabelValues(r)
	}
}
