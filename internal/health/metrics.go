package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthMetrics holds Prometheus metrics for health checks.
type HealthMetrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

var (
	healthMetricsInstance *HealthMetrics
	healthMetricsOnce     sync.Once
)

// GetHealthMetrics returns the singleton health metrics instance.
func GetHealthMetrics() *HealthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = &HealthMetrics{
			checksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "mug",
					Subsystem: "health",
					Name:      "checks_total",
					Help:      "Total number of health checks performed",
				},
				[]string{"type"},
			),
			checkStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "mug",
					Subsystem: "health",
					Name:      "check_status",
					Help:      "Current health check status (1=healthy, 0=unhealthy)",
				},
				[]string{"check"},
			),
		}
	})
	return healthMetricsInstance
}

// MustRegister registers all health collectors with the given registry.
// promauto registers with the default registry; the metrics listener serves
// a custom one, so collectors are bridged explicitly.
func (m *HealthMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.checksTotal,
		m.checkStatus,
	)
}

// Init pre-populates label combinations so they are exported from startup.
func (m *HealthMetrics) Init() {
	for _, checkType := range []string{"health", "liveness", "readiness"} {
		m.checksTotal.WithLabelValues(checkType)
	}
	m.checkStatus.WithLabelValues("overall")
}

func (m *HealthMetrics) setStatus(check string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1
	}
	m.checkStatus.WithLabelValues(check).Set(value)
}
