package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/health"
	"github.com/vyrodovalexey/mug/internal/middleware"
	"github.com/vyrodovalexey/mug/internal/observability"
	"github.com/vyrodovalexey/mug/internal/resource"
	"github.com/vyrodovalexey/mug/internal/router"
	"github.com/vyrodovalexey/mug/internal/server"
	"github.com/vyrodovalexey/mug/internal/store"
)

// Metrics listener timeouts.
const (
	metricsReadTimeout  = 10 * time.Second
	metricsWriteTimeout = 10 * time.Second
)

// application holds all application components.
type application struct {
	logger        observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	store         store.Store
	healthChecker *health.Checker
	handler       *server.SwapHandler
	server        *server.Server
	metricsServer *server.Server

	mu     sync.Mutex
	config *config.Config
}

// newApplication initializes all application components. Nothing listens
// until start is called.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := initMetrics()

	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	st, err := store.New(&cfg.Store, logger.Named("store"))
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	healthChecker := health.NewChecker(version, health.WithLogger(logger.Named("health")))
	healthChecker.RegisterCheck("store", st.Ping)

	handler, err := buildMiddlewareChain(cfg, st, logger, metrics, tracer)
	if err != nil {
		_ = st.Close()
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	app := &application{
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
		store:         st,
		healthChecker: healthChecker,
		handler:       server.NewSwapHandler(handler),
		config:        cfg,
	}

	app.server = server.NewFromConfig(&cfg.Server, app.handler,
		server.WithName("api"),
		server.WithLogger(logger.Named("server")),
	)

	if cfg.Metrics.Enabled {
		app.metricsServer = server.New(cfg.Metrics.ListenAddress(),
			newMetricsMux(cfg.Metrics.Path, metrics, healthChecker),
			server.WithName("metrics"),
			server.WithLogger(logger.Named("server")),
			server.WithTimeouts(metricsReadTimeout, metricsWriteTimeout, 0),
		)
	}

	return app, nil
}

// initMetrics creates the application registry and bridges the package
// level collectors into it.
func initMetrics() *observability.Metrics {
	metrics := observability.NewMetrics("mug")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	routerMetrics := router.GetMetrics()
	routerMetrics.MustRegister(metrics.Registry())
	routerMetrics.Init()

	middlewareMetrics := middleware.GetMiddlewareMetrics()
	middlewareMetrics.MustRegister(metrics.Registry())
	middlewareMetrics.Init()

	healthMetrics := health.GetHealthMetrics()
	healthMetrics.MustRegister(metrics.Registry())
	healthMetrics.Init()

	store.GetMetrics().MustRegister(metrics.Registry())

	return metrics
}

// newMetricsMux serves metrics and the health endpoints.
func newMetricsMux(path string, metrics *observability.Metrics, healthChecker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	healthChecker.Register(mux)
	return mux
}

// newRouter registers the application routes. Route and resource logs
// carry their own logger names.
func newRouter(st store.Store, logger observability.Logger) (*router.Router, error) {
	r := router.New(router.WithLogger(logger.Named("router")))

	if err := r.Get("/api", router.Wrap(health.APIHandler(nil))); err != nil {
		return nil, err
	}

	if err := resource.NewHandler(st, logger.Named("resource")).Register(r); err != nil {
		return nil, err
	}

	return r, nil
}

// buildMiddlewareChain builds the router and wraps it.
// The execution order (outermost executes first):
// Recovery -> RequestID -> Logging -> Tracing -> Metrics ->
// RateLimit -> Timeout -> CORS -> Authenticate -> [router]
//
// CORS runs before authentication so that preflights are answered without
// credentials.
func buildMiddlewareChain(
	cfg *config.Config,
	st store.Store,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) (http.Handler, error) {
	r, err := newRouter(st, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	routerLogger := logger.Named("router")
	logger = logger.Named("http")

	// Per-client limits follow the API key when callers present one.
	var limitOpts []middleware.RateLimiterOption
	if cfg.RateLimit.PerClient && cfg.Auth.Enabled {
		limitOpts = append(limitOpts, middleware.WithKeyFunc(middleware.CredentialKey(cfg.Auth.Header)))
	}
	rateLimit := middleware.RateLimitFromConfig(&cfg.RateLimit, logger, limitOpts...)
	cors := middleware.NewCorsPolicyFromConfig(&cfg.CORS, middleware.WithCorsLogger(logger))

	middlewares := []func(http.Handler) http.Handler{
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		observability.TracingMiddleware(tracer),
		observability.MetricsMiddleware(metrics),
		rateLimit,
		middleware.Timeout(cfg.Server.RequestTimeout.Duration()),
		cors.Handler,
	}

	if authenticator := middleware.NewAPIKeyAuthenticatorFromConfig(&cfg.Auth); authenticator != nil {
		middlewares = append(middlewares, middleware.Authenticate(authenticator, logger))
	}

	routerLogger.Debug("routes registered", observability.String("routes", r.String()))

	return middleware.Chain(r, middlewares...), nil
}

// reload rebuilds the handler from newCfg and swaps it in. Listener
// addresses, the store and telemetry exporters keep their startup values.
// On error the running handler is left untouched.
func (a *application) reload(newCfg *config.Config) error {
	handler, err := buildMiddlewareChain(newCfg, a.store, a.logger, a.metrics, a.tracer)
	if err != nil {
		return err
	}

	a.mu.Lock()
	old := a.config
	a.config = newCfg
	a.mu.Unlock()

	a.handler.Store(handler)

	if restartRequired(old, newCfg) {
		a.logger.Warn("configuration change requires restart to take full effect",
			observability.String("config", newCfg.String()),
		)
	}

	return nil
}

// restartRequired reports whether settings that are fixed at startup
// differ between the two configurations.
func restartRequired(old, updated *config.Config) bool {
	return old.Server != updated.Server ||
		old.Metrics != updated.Metrics ||
		old.Tracing != updated.Tracing ||
		old.Store != updated.Store
}

// start starts the listeners.
func (a *application) start(ctx context.Context) error {
	if err := a.server.Start(ctx); err != nil {
		return err
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Start(ctx); err != nil {
			_ = a.server.Stop(ctx)
			return err
		}
	}

	return nil
}

// shutdownTimeout returns the configured graceful shutdown budget.
func (a *application) shutdownTimeout() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	if d := a.config.Server.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return config.DefaultShutdownTimeout
}
