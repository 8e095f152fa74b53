package router

import (
	"context"
	"strings"
)

// Param is a path parameter captured during search.
type Param struct {
	Key   string
	Value string
}

// RouteContext is the immutable, ordered set of parameters captured for a
// single request, together with the pattern that matched it.
type RouteContext struct {
	params  []Param
	pattern string
}

func newRouteContext(params []Param, pattern string) RouteContext {
	return RouteContext{params: params, pattern: pattern}
}

// Get returns the value of the first parameter named key.
func (rc RouteContext) Get(key string) (string, bool) {
	for _, p := range rc.params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Param returns the value of the parameter named key, or "".
func (rc RouteContext) Param(key string) string {
	v, _ := rc.Get(key)
	return v
}

// Params returns a copy of the captured parameters in path order.
func (rc RouteContext) Params() []Param {
	if len(rc.params) == 0 {
		return nil
	}
	out := make([]Param, len(rc.params))
	copy(out, rc.params)
	return out
}

// Len returns the number of captured parameters.
func (rc RouteContext) Len() int {
	return len(rc.params)
}

// Pattern returns the registered pattern that matched, or "" for fallbacks.
func (rc RouteContext) Pattern() string {
	return rc.pattern
}

func (rc RouteContext) String() string {
	var b strings.Builder
	b.WriteString("RouteContext{")
	for i, p := range rc.params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	b.WriteByte('}')
	return b.String()
}

type routeContextKey struct{}

// WithRouteContext attaches rc to ctx.
func WithRouteContext(ctx context.Context, rc RouteContext) context.Context {
	return context.WithValue(ctx, routeContextKey{}, rc)
}

// RouteContextFrom returns the RouteContext stored in ctx. Handlers adapted
// from plain http.Handler use it to reach path parameters.
func RouteContextFrom(ctx context.Context) (RouteContext, bool) {
	rc, ok := ctx.Value(routeContextKey{}).(RouteContext)
	return rc, ok
}

// ParamFromContext returns the named path parameter from ctx, or "".
func ParamFromContext(ctx context.Context, key string) string {
	rc, _ := RouteContextFrom(ctx)
	return rc.Param(key)
}
