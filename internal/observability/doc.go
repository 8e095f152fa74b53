// Package observability provides logging, metrics, and tracing for mug.
//
// Logging goes through the Logger interface backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Metrics owns a dedicated Prometheus registry; other packages register
// their collectors into it so a single /metrics endpoint serves everything.
//
// MetricsMiddleware and TracingMiddleware label requests by the matched
// route pattern. The router publishes the pattern through a RouteRecorder
// stored in the request context by the outermost of these middlewares.
package observability
