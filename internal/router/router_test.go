package router

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/mug/internal/observability"
)

// trackingBody records whether the router closed the request body.
type trackingBody struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (b *trackingBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *trackingBody) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func recordingMiddleware(name string, trace *[]string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request, rc RouteContext) {
			*trace = append(*trace, name+":in")
			next(w, r, rc)
			*trace = append(*trace, name+":out")
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	r := New()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRouter_ServeHTTP_Found(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Get("/users/:id", func(w http.ResponseWriter, req *http.Request, rc RouteContext) {
		fromCtx, ok := RouteContextFrom(req.Context())
		require.True(t, ok)
		assert.Equal(t, rc.Params(), fromCtx.Params())
		_, _ = io.WriteString(w, "user "+rc.Param("id"))
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/42", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user 42", rec.Body.String())
}

func TestRouter_ServeHTTP_MiddlewareOrder(t *testing.T) {
	t.Parallel()

	var trace []string
	r := New()
	r.Use(recordingMiddleware("global", &trace))
	require.NoError(t, r.Get("/onion", func(_ http.ResponseWriter, _ *http.Request, _ RouteContext) {
		trace = append(trace, "handler")
	},
		recordingMiddleware("first", &trace),
		recordingMiddleware("second", &trace),
	))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/onion", nil))

	assert.Equal(t, []string{
		"global:in",
		"first:in",
		"second:in",
		"handler",
		"second:out",
		"first:out",
		"global:out",
	}, trace)
}

func TestRouter_ServeHTTP_MiddlewareShortCircuit(t *testing.T) {
	t.Parallel()

	called := false
	deny := func(_ HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request, _ RouteContext) {
			w.WriteHeader(http.StatusForbidden)
		}
	}

	r := New()
	require.NoError(t, r.Get("/secret", func(_ http.ResponseWriter, _ *http.Request, _ RouteContext) {
		called = true
	}, deny))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/secret", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}

func TestRouter_ServeHTTP_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register([]string{http.MethodGet, http.MethodPost}, "/items", namedHandler("items")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/items", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
	assert.Empty(t, rec.Body.String())
}

func TestRouter_ServeHTTP_IntermediatePath(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Get("/a/b", namedHandler("ab")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header(), "Allow")
	assert.Empty(t, rec.Header().Get("Allow"))
	assert.Empty(t, rec.Body.String())
}

func TestRouter_CustomFallbacks(t *testing.T) {
	t.Parallel()

	var globalCalls int
	countGlobal := func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request, rc RouteContext) {
			globalCalls++
			next(w, r, rc)
		}
	}

	r := New(
		WithNotFoundHandler(func(w http.ResponseWriter, _ *http.Request, rc RouteContext) {
			assert.Zero(t, rc.Len())
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "custom 404")
		}),
	)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request, rc RouteContext) {
		assert.Zero(t, rc.Len())
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, "custom 405")
	})
	r.Use(countGlobal)
	require.NoError(t, r.Get("/only-get/:id", namedHandler("get")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, "custom 404", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/only-get/1", nil))
	assert.Equal(t, "custom 405", rec.Body.String())

	assert.Zero(t, globalCalls)
}

func TestRouter_ServeHTTP_FinalizesExchange(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Post("/ok", namedHandler("ok")))
	require.NoError(t, r.Post("/boom", func(_ http.ResponseWriter, _ *http.Request, _ RouteContext) {
		panic("handler failure")
	}))

	tests := []struct {
		name      string
		path      string
		wantPanic bool
	}{
		{name: "matched route", path: "/ok"},
		{name: "not found fallback", path: "/missing"},
		{name: "panicking handler", path: "/boom", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body := &trackingBody{Reader: strings.NewReader("payload")}
			req := httptest.NewRequest(http.MethodPost, tt.path, body)

			serve := func() { r.ServeHTTP(httptest.NewRecorder(), req) }
			if tt.wantPanic {
				assert.PanicsWithValue(t, "handler failure", serve)
			} else {
				assert.NotPanics(t, serve)
			}
			assert.True(t, body.isClosed())
		})
	}
}

func TestRouter_ServeHTTP_RecordsRoute(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Get("/users/:id", namedHandler("u")))

	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{name: "pattern", method: http.MethodGet, path: "/users/1", want: "/users/:id"},
		{name: "not found", method: http.MethodGet, path: "/nope", want: observability.RouteNotFound},
		{name: "method not allowed", method: http.MethodPost, path: "/users/1", want: observability.RouteMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, nil)
			ctx, recorder := observability.WithRouteRecorder(req.Context())
			r.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

			assert.Equal(t, tt.want, recorder.Pattern())
		})
	}
}

func TestRouter_Register_Errors(t *testing.T) {
	t.Parallel()

	r := New()

	err := r.Register(nil, "/x", namedHandler("x"))
	assert.ErrorIs(t, err, ErrEmptyMethods)

	err = r.Get("/x/:id[(]", namedHandler("x"))
	assert.ErrorIs(t, err, ErrInvalidPattern)
	assert.Contains(t, err.Error(), "register GET /x/:id[(]")

	assert.Empty(t, r.Routes())
}

func TestRouter_Routes_And_String(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Get("/a", namedHandler("a")))
	require.NoError(t, r.Register([]string{"post", http.MethodPut}, "/b/:id[\\d+]", namedHandler("b")))
	require.NoError(t, r.Get("/a", namedHandler("a2")))

	assert.Equal(t, []Route{
		{Method: http.MethodGet, Pattern: "/a"},
		{Method: http.MethodPost, Pattern: "/b/:id[\\d+]"},
		{Method: http.MethodPut, Pattern: "/b/:id[\\d+]"},
	}, r.Routes())

	assert.Equal(t,
		`Router{routes: [GET /a, POST /b/:id[\d+], PUT /b/:id[\d+]], middlewares: 0, patterns: 1}`,
		r.String(),
	)
}

func TestRouter_Lookup(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Put("/things/:id", namedHandler("put")))
	require.NoError(t, r.Delete("/things/:id", namedHandler("delete")))

	res := r.Lookup(http.MethodDelete, "/things/9")
	require.Equal(t, Found, res.Status)
	assert.Equal(t, "delete", invoke(t, res.Action.Handler))
	assert.Equal(t, []Param{{Key: "id", Value: "9"}}, res.Params)
}

func TestRouter_SharedPatternCache(t *testing.T) {
	t.Parallel()

	cache := NewPatternCache()
	first := New(WithPatternCache(cache))
	second := New(WithPatternCache(cache))

	require.NoError(t, first.Get(`/a/:id[\d+]`, namedHandler("a")))
	require.NoError(t, second.Get(`/b/:id[\d+]`, namedHandler("b")))

	assert.Equal(t, 1, cache.Len())
}

func TestRouter_LogsFallbacks(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	r := New(WithLogger(observability.FromZap(zap.New(core))))
	require.NoError(t, r.Get("/x", namedHandler("x")))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/y", nil))

	assert.Equal(t, 1, logs.FilterMessage("route registered").Len())
	assert.Equal(t, 1, logs.FilterMessage("route not found").Len())
}

func TestAdapt_And_Wrap(t *testing.T) {
	t.Parallel()

	header := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Adapted", "yes")
			next.ServeHTTP(w, r)
		})
	}
	plain := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, ParamFromContext(r.Context(), "name"))
	})

	r := New()
	require.NoError(t, r.Get("/hello/:name", Wrap(plain), Adapt(header)))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello/gopher", nil))

	assert.Equal(t, "yes", rec.Header().Get("X-Adapted"))
	assert.Equal(t, "gopher", rec.Body.String())
}

func TestRouter_ConcurrentServe(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Get(`/n/:id[\d+]`, func(w http.ResponseWriter, _ *http.Request, rc RouteContext) {
		_, _ = io.WriteString(w, rc.Param("id"))
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/n/123", nil))
			if rec.Body.String() != "123" {
				errs <- errors.New("unexpected body " + rec.Body.String())
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
