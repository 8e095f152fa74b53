package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	logger := observability.NopLogger()
	s := New("127.0.0.1:0", okHandler("ok"),
		WithLogger(logger),
		WithName("api"),
		WithTimeouts(time.Second, 2*time.Second, 3*time.Second),
	)

	assert.Equal(t, "api", s.name)
	assert.Equal(t, logger, s.logger)
	assert.Equal(t, time.Second, s.readTimeout)
	assert.Equal(t, 2*time.Second, s.writeTimeout)
	assert.Equal(t, 3*time.Second, s.idleTimeout)
	assert.Equal(t, "127.0.0.1:0", s.Address())
	assert.False(t, s.IsRunning())
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig().Server
	cfg.Address = "127.0.0.1"
	cfg.Port = 0

	s := NewFromConfig(&cfg, okHandler("ok"), WithName("main"))

	assert.Equal(t, "127.0.0.1:0", s.addr)
	assert.Equal(t, "main", s.name)
	assert.Equal(t, config.DefaultReadTimeout, s.readTimeout)
	assert.Equal(t, config.DefaultWriteTimeout, s.writeTimeout)
	assert.Equal(t, config.DefaultIdleTimeout, s.idleTimeout)
}

func TestServer_StartStop(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", okHandler("hello"))
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.NotEqual(t, "127.0.0.1:0", s.Address())

	resp, err := http.Get("http://" + s.Address() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))

	err = s.Start(ctx)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())
}

func TestServer_StopNotStarted(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", okHandler("ok"))
	assert.NoError(t, s.Stop(context.Background()))
}

func TestServer_StartListenError(t *testing.T) {
	t.Parallel()

	first := New("127.0.0.1:0", okHandler("ok"))
	require.NoError(t, first.Start(context.Background()))
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	second := New(first.Address(), okHandler("ok"))
	err := second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.False(t, second.IsRunning())
}

func TestServer_Restart(t *testing.T) {
	t.Parallel()

	s := New("127.0.0.1:0", okHandler("ok"))
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Stop(ctx))
}

func TestSwapHandler(t *testing.T) {
	t.Parallel()

	swap := NewSwapHandler(okHandler("v1"))

	rec := httptest.NewRecorder()
	swap.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "v1", rec.Body.String())

	swap.Store(okHandler("v2"))

	rec = httptest.NewRecorder()
	swap.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "v2", rec.Body.String())
	assert.NotNil(t, swap.Load())
}
