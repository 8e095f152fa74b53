package observability

import (
	"context"
	"sync/atomic"
)

// Route label values used when no registered pattern handled the request.
const (
	RouteUnmatched        = "unmatched"
	RouteNotFound         = "not_found"
	RouteMethodNotAllowed = "method_not_allowed"
)

// RouteRecorder carries the matched route pattern from the router back up
// to the middlewares that wrap it. Context values only flow downstream, so
// outer middlewares install a recorder and read it once the chain returns.
type RouteRecorder struct {
	pattern atomic.Pointer[string]
}

// Pattern returns the recorded pattern or RouteUnmatched.
func (r *RouteRecorder) Pattern() string {
	if p := r.pattern.Load(); p != nil {
		return *p
	}
	return RouteUnmatched
}

// WithRouteRecorder returns a context holding a recorder. An existing
// recorder is reused so every wrapping middleware observes the same value.
func WithRouteRecorder(ctx context.Context) (context.Context, *RouteRecorder) {
	if rec, ok := ctx.Value(routeRecorderKey).(*RouteRecorder); ok {
		return ctx, rec
	}
	rec := &RouteRecorder{}
	return context.WithValue(ctx, routeRecorderKey, rec), rec
}

// RecordRoute stores the matched pattern if a recorder is present in ctx.
func RecordRoute(ctx context.Context, pattern string) {
	if rec, ok := ctx.Value(routeRecorderKey).(*RouteRecorder); ok {
		rec.pattern.Store(&pattern)
	}
}
