package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/mug/internal/observability"
)

// HandlerFunc handles a routed request. rc holds the captured path
// parameters.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, rc RouteContext)

// Middleware wraps a HandlerFunc. It must call next to continue the chain
// or deliberately return without calling it to short-circuit.
type Middleware func(next HandlerFunc) HandlerFunc

// Wrap converts a plain http.Handler into a HandlerFunc. The handler can
// read parameters with RouteContextFrom.
func Wrap(h http.Handler) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ RouteContext) {
		h.ServeHTTP(w, r)
	}
}

// Adapt converts a net/http middleware into a route Middleware.
func Adapt(mw func(http.Handler) http.Handler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request, rc RouteContext) {
			mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next(w, r, rc)
			})).ServeHTTP(w, r)
		}
	}
}

// Route describes a registered (method, pattern) pair.
type Route struct {
	Method  string
	Pattern string
}

func (r Route) String() string {
	return r.Method + " " + r.Pattern
}

// Router dispatches requests through a PathTrie.
//
// Routes, middlewares and fallback handlers are configured before the
// router starts serving. A Router that is serving must not be modified;
// build a new Router instead.
type Router struct {
	trie             *PathTrie
	cache            *PatternCache
	logger           observability.Logger
	metrics          *Metrics
	notFound         HandlerFunc
	methodNotAllowed HandlerFunc
	middlewares      []Middleware
	routes           []Route
}

// Option is a functional option for configuring the router.
type Option func(*Router)

// WithLogger sets the logger for the router.
func WithLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithPatternCache shares a pattern cache between routers.
func WithPatternCache(cache *PatternCache) Option {
	return func(r *Router) {
		r.cache = cache
	}
}

// WithNotFoundHandler replaces the default empty 404 handler.
func WithNotFoundHandler(h HandlerFunc) Option {
	return func(r *Router) {
		r.notFound = h
	}
}

// WithMethodNotAllowedHandler replaces the default empty 405 handler.
func WithMethodNotAllowedHandler(h HandlerFunc) Option {
	return func(r *Router) {
		r.methodNotAllowed = h
	}
}

// New creates a new Router.
func New(opts ...Option) *Router {
	r := &Router{
		logger:           observability.NopLogger(),
		metrics:          GetMetrics(),
		notFound:         statusHandler(http.StatusNotFound),
		methodNotAllowed: statusHandler(http.StatusMethodNotAllowed),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.cache == nil {
		r.cache = NewPatternCache()
	}
	r.trie = NewPathTrie(r.cache)

	return r
}

func statusHandler(code int) HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request, _ RouteContext) {
		w.WriteHeader(code)
	}
}

// NotFound replaces the not-found handler. Call before serving.
func (r *Router) NotFound(h HandlerFunc) {
	r.notFound = h
}

// MethodNotAllowed replaces the method-not-allowed handler. Call before serving.
func (r *Router) MethodNotAllowed(h HandlerFunc) {
	r.methodNotAllowed = h
}

// Use appends router-wide middlewares. They wrap every matched route and
// run before the route's own middlewares. Fallback handlers are not wrapped.
func (r *Router) Use(middlewares ...Middleware) {
	r.middlewares = append(r.middlewares, middlewares...)
}

// Register adds handler for each of methods at path. Registering the same
// path and method again replaces the previous handler.
func (r *Router) Register(methods []string, path string, handler HandlerFunc, middlewares ...Middleware) error {
	if err := r.trie.Insert(methods, path, handler, middlewares); err != nil {
		return fmt.Errorf("register %s %s: %w", strings.Join(methods, ","), path, err)
	}

	for _, m := range methods {
		r.addRoute(Route{Method: strings.ToUpper(m), Pattern: path})
	}
	r.metrics.routesRegistered.Set(float64(len(r.routes)))

	r.logger.Debug("route registered",
		observability.Strings("methods", methods),
		observability.String("pattern", path),
		observability.Int("middlewares", len(middlewares)),
	)

	return nil
}

func (r *Router) addRoute(route Route) {
	for _, existing := range r.routes {
		if existing == route {
			return
		}
	}
	r.routes = append(r.routes, route)
}

// Handle registers handler for a single method.
func (r *Router) Handle(method, path string, handler HandlerFunc, middlewares ...Middleware) error {
	return r.Register([]string{method}, path, handler, middlewares...)
}

// Get registers a GET route.
func (r *Router) Get(path string, handler HandlerFunc, middlewares ...Middleware) error {
	return r.Handle(http.MethodGet, path, handler, middlewares...)
}

// Post registers a POST route.
func (r *Router) Post(path string, handler HandlerFunc, middlewares ...Middleware) error {
	return r.Handle(http.MethodPost, path, handler, middlewares...)
}

// Put registers a PUT route.
func (r *Router) Put(path string, handler HandlerFunc, middlewares ...Middleware) error {
	return r.Handle(http.MethodPut, path, handler, middlewares...)
}

// Delete registers a DELETE route.
func (r *Router) Delete(path string, handler HandlerFunc, middlewares ...Middleware) error {
	return r.Handle(http.MethodDelete, path, handler, middlewares...)
}

// Lookup resolves method and path without dispatching.
func (r *Router) Lookup(method, path string) SearchResult {
	return r.trie.Search(method, path)
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer finalize(req)

	res := r.trie.Search(req.Method, req.URL.Path)

	var (
		handler HandlerFunc
		rc      RouteContext
	)

	switch res.Status {
	case Found:
		rc = newRouteContext(res.Params, res.Action.Pattern)
		handler = compose(res.Action.Handler, r.middlewares, res.Action.Middlewares)
		observability.RecordRoute(req.Context(), res.Action.Pattern)
		r.metrics.dispatchTotal.WithLabelValues(outcomeFound).Inc()
	case MethodNotAllowed:
		w.Header().Set("Allow", strings.Join(res.Allowed, ", "))
		handler = r.methodNotAllowed
		observability.RecordRoute(req.Context(), observability.RouteMethodNotAllowed)
		r.metrics.dispatchTotal.WithLabelValues(outcomeMethodNotAllowed).Inc()
		r.logger.WithContext(req.Context()).Debug("method not allowed",
			observability.String("method", req.Method),
			observability.String("path", req.URL.Path),
		)
	default:
		handler = r.notFound
		observability.RecordRoute(req.Context(), observability.RouteNotFound)
		r.metrics.dispatchTotal.WithLabelValues(outcomeNotFound).Inc()
		r.logger.WithContext(req.Context()).Debug("route not found",
			observability.String("method", req.Method),
			observability.String("path", req.URL.Path),
		)
	}

	handler(w, req.WithContext(WithRouteContext(req.Context(), rc)), rc)
}

// compose folds middlewares around h from last to first, so the first
// middleware is the outermost wrapper. Router-wide middlewares come first.
func compose(h HandlerFunc, global, route []Middleware) HandlerFunc {
	for i := len(route) - 1; i >= 0; i-- {
		h = route[i](h)
	}
	for i := len(global) - 1; i >= 0; i-- {
		h = global[i](h)
	}
	return h
}

// finalize releases the request side of the exchange. It runs on every
// exit path, including fallbacks and handler panics; net/http completes
// the response once ServeHTTP returns.
func finalize(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// String lists the registered routes.
func (r *Router) String() string {
	var b strings.Builder
	b.WriteString("Router{routes: [")
	for i, route := range r.routes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(route.String())
	}
	fmt.Fprintf(&b, "], middlewares: %d, patterns: %d}", len(r.middlewares), r.cache.Len())
	return b.String()
}
