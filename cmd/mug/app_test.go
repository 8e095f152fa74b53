package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Metrics.Address = "127.0.0.1"
	cfg.Metrics.Port = 0
	return cfg
}

func newTestApplication(t *testing.T, cfg *config.Config) *application {
	t.Helper()

	app, err := newApplication(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.store.Close() })
	return app
}

func do(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("mug", flag.ContinueOnError)
	flags := parseFlags(fs, []string{
		"-config", "/etc/mug.yaml",
		"-log-level", "debug",
		"-log-format", "console",
		"-version",
	})

	assert.Equal(t, "/etc/mug.yaml", flags.configPath)
	assert.Equal(t, "debug", flags.logLevel)
	assert.Equal(t, "console", flags.logFormat)
	assert.True(t, flags.showVersion)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("MUG_TEST_ENV", "set")

	assert.Equal(t, "set", getEnvOrDefault("MUG_TEST_ENV", "default"))
	assert.Equal(t, "default", getEnvOrDefault("MUG_TEST_ENV_MISSING", "default"))
}

func TestApplication_Routes(t *testing.T) {
	t.Parallel()

	app := newTestApplication(t, testConfig())

	rec := do(app.handler, http.MethodGet, "/api", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "api", status["system"])
	assert.Equal(t, "OK", status["status"])

	rec = do(app.handler, http.MethodPost, "/api", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))

	rec = do(app.handler, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(app.handler, http.MethodGet, "/api/resources", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"data":[]}`, rec.Body.String())
}

func TestApplication_Auth(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Name: "ci", Key: "secret"}}

	app := newTestApplication(t, cfg)

	rec := do(app.handler, http.MethodGet, "/api", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(app.handler, http.MethodGet, "/api", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(app.handler, http.MethodOptions, "/api", map[string]string{
		"Origin":                        "https://app.example",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code, "preflight needs no credentials")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestApplication_RateLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1
	cfg.RateLimit.PerClient = false

	app := newTestApplication(t, cfg)

	assert.Equal(t, http.StatusOK, do(app.handler, http.MethodGet, "/api", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(app.handler, http.MethodGet, "/api", nil).Code)
}

func TestApplication_RateLimitPerAPIKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1
	cfg.RateLimit.PerClient = true
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Name: "ci", Key: "secret"}}

	app := newTestApplication(t, cfg)
	withKey := map[string]string{"X-API-Key": "secret"}

	assert.Equal(t, http.StatusOK, do(app.handler, http.MethodGet, "/api", withKey).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(app.handler, http.MethodGet, "/api", withKey).Code)
	// Same address without a key draws from its own bucket and fails auth.
	assert.Equal(t, http.StatusUnauthorized, do(app.handler, http.MethodGet, "/api", nil).Code)
}

func TestApplication_Reload(t *testing.T) {
	t.Parallel()

	app := newTestApplication(t, testConfig())
	assert.Equal(t, http.StatusOK, do(app.handler, http.MethodGet, "/api", nil).Code)

	updated := testConfig()
	updated.Auth.Enabled = true
	updated.Auth.APIKeys = []config.APIKeyConfig{{Name: "ci", Key: "secret"}}
	require.NoError(t, app.reload(updated))

	assert.Equal(t, http.StatusUnauthorized, do(app.handler, http.MethodGet, "/api", nil).Code)
	assert.Same(t, updated, app.config)
}

func TestApplication_ConfigReloader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mug.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  type: memory\n"), 0o600))

	app := newTestApplication(t, testConfig())
	reloader, err := newConfigReloader(app, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
store:
  type: memory
auth:
  enabled: true
  apiKeys:
    - name: ci
      key: secret
`), 0o600))
	require.NoError(t, reloader.Reload())
	assert.Equal(t, http.StatusUnauthorized, do(app.handler, http.MethodGet, "/api", nil).Code)
	assert.Same(t, reloader.Current(), app.config)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))
	require.Error(t, reloader.Reload())
	assert.Equal(t, http.StatusUnauthorized, do(app.handler, http.MethodGet, "/api", nil).Code)
}

func TestApplication_NamedLoggers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	app, err := newApplication(context.Background(), testConfig(), observability.FromZap(zap.New(core)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.store.Close() })

	routes := logs.FilterMessage("routes registered").All()
	require.Len(t, routes, 1)
	assert.Equal(t, "router", routes[0].LoggerName)

	do(app.handler, http.MethodGet, "/api", nil)

	requests := logs.FilterMessage("http request").All()
	require.NotEmpty(t, requests)
	assert.Equal(t, "http", requests[0].LoggerName)
}

func TestRestartRequired(t *testing.T) {
	t.Parallel()

	base := testConfig()

	same := testConfig()
	same.CORS.AllowedOrigins = []string{"https://app.example"}
	assert.False(t, restartRequired(base, same))

	moved := testConfig()
	moved.Server.Port = 9999
	assert.True(t, restartRequired(base, moved))

	redis := testConfig()
	redis.Store.Type = config.StoreRedis
	assert.True(t, restartRequired(base, redis))
}

func TestApplication_StartShutdown(t *testing.T) {
	t.Parallel()

	app, err := newApplication(context.Background(), testConfig(), observability.NopLogger())
	require.NoError(t, err)

	require.NoError(t, app.start(context.Background()))
	require.True(t, app.server.IsRunning())
	require.NotNil(t, app.metricsServer)

	resp, err := http.Get("http://" + app.server.Address() + "/api")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + app.metricsServer.Address() + config.DefaultMetricsPath)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.True(t, strings.Contains(string(body), "mug_http_requests_total"))

	resp, err = http.Get("http://" + app.metricsServer.Address() + "/ready")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	app.shutdown()
	assert.False(t, app.server.IsRunning())
	assert.False(t, app.metricsServer.IsRunning())
}

func TestApplication_ShutdownTimeout(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ShutdownTimeout = 0

	app := newTestApplication(t, cfg)
	assert.Equal(t, config.DefaultShutdownTimeout, app.shutdownTimeout())

	app.config.Server.ShutdownTimeout = config.Duration(time.Second)
	assert.Equal(t, time.Second, app.shutdownTimeout())
}
