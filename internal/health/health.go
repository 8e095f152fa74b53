package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/mug/internal/observability"
)

// DefaultCheckTimeout bounds a readiness evaluation.
const DefaultCheckTimeout = 5 * time.Second

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Check represents an individual health check result.
type Check struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// CheckFunc reports a dependency as healthy by returning nil.
type CheckFunc func(ctx context.Context) error

// Checker provides health and readiness checking functionality.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	checks    map[string]CheckFunc
	logger    observability.Logger
	metrics   *HealthMetrics
	mu        sync.RWMutex
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger used to report failing checks.
func WithLogger(logger observability.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithTimeout bounds the time a readiness evaluation may take.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewChecker creates a new health checker.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
		checks:    make(map[string]CheckFunc),
		logger:    observability.NopLogger(),
		metrics:   GetHealthMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterCheck registers a readiness check under name, replacing any
// previous check with that name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a readiness check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Health returns the process health.
func (c *Checker) Health() HealthResponse {
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs every registered check. One failing check makes the
// service unready.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check, len(names)),
		Timestamp: time.Now(),
	}

	for _, name := range names {
		start := time.Now()
		err := checks[name](ctx)

		check := Check{Status: StatusHealthy, Duration: time.Since(start).String()}
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			response.Status = StatusUnhealthy
			c.logger.Warn("readiness check failed",
				observability.String("check", name),
				observability.Error(err),
			)
		}
		c.metrics.setStatus(name, err == nil)
		response.Checks[name] = check
	}

	c.metrics.setStatus("overall", response.Status == StatusHealthy)
	return response
}

// HealthHandler returns an HTTP handler for the health endpoint.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c.metrics.checksTotal.WithLabelValues("health").Inc()
		writeJSON(w, http.StatusOK, c.Health())
	}
}

// ReadinessHandler returns an HTTP handler for the readiness endpoint.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.metrics.checksTotal.WithLabelValues("readiness").Inc()

		response := c.Readiness(r.Context())

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, response)
	}
}

// LivenessHandler returns an HTTP handler for the liveness endpoint.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c.metrics.checksTotal.WithLabelValues("liveness").Inc()
		w.Header().Set(HeaderContentType, ContentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Register mounts /health, /ready and /live on mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", c.HealthHandler())
	mux.HandleFunc("GET /ready", c.ReadinessHandler())
	mux.HandleFunc("GET /live", c.LivenessHandler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
