package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/mug/internal/observability"
)

const validConfigYAML = `
server:
  port: 8080
store:
  type: memory
`

const updatedConfigYAML = `
server:
  port: 8181
store:
  type: memory
`

const invalidConfigYAML = `
server:
  port: -1
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// hookRecorder collects reload outcomes.
type hookRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (h *hookRecorder) hook(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *hookRecorder) outcomes() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func TestNewReloader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, validConfigYAML)

	applied := 0
	r, err := NewReloader(path, func(*Config) error {
		applied++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, path, r.path)
	assert.Equal(t, DefaultSettleDelay, r.settleDelay)
	assert.Equal(t, 8080, r.Current().Server.Port)
	assert.Zero(t, applied)
}

func TestNewReloader_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.yaml")
	writeConfig(t, invalid, invalidConfigYAML)
	malformed := filepath.Join(dir, "malformed.yaml")
	writeConfig(t, malformed, "server: [")

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.yaml")},
		{name: "invalid config", path: invalid},
		{name: "malformed yaml", path: malformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewReloader(tt.path, nil)
			require.Error(t, err)
			assert.Nil(t, r)
		})
	}
}

func TestReloader_Reload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, validConfigYAML)

	var applied []*Config
	var hooks hookRecorder
	r, err := NewReloader(path, func(cfg *Config) error {
		applied = append(applied, cfg)
		return nil
	}, WithReloadHook(hooks.hook))
	require.NoError(t, err)

	// Same bytes as the initial load.
	require.NoError(t, r.Reload())
	assert.Empty(t, applied)
	assert.Empty(t, hooks.outcomes())

	writeConfig(t, path, updatedConfigYAML)
	require.NoError(t, r.Reload())
	require.Len(t, applied, 1)
	assert.Equal(t, 8181, applied[0].Server.Port)
	assert.Same(t, applied[0], r.Current())
	assert.Equal(t, []error{nil}, hooks.outcomes())

	require.NoError(t, r.Reload())
	assert.Len(t, applied, 1)
}

func TestReloader_Reload_InvalidKeepsCurrent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, validConfigYAML)

	core, logs := observer.New(zapcore.InfoLevel)
	var hooks hookRecorder
	r, err := NewReloader(path, func(*Config) error {
		t.Error("invalid configuration must not be applied")
		return nil
	},
		WithReloadHook(hooks.hook),
		WithLogger(observability.FromZap(zap.New(core))),
	)
	require.NoError(t, err)

	writeConfig(t, path, invalidConfigYAML)
	require.ErrorIs(t, r.Reload(), ErrInvalidConfig)

	assert.Equal(t, 8080, r.Current().Server.Port)
	outcomes := hooks.outcomes()
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0])
	assert.Equal(t, 1, logs.FilterMessage("configuration reload failed").Len())
}

func TestReloader_Reload_ApplyFailureRetries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, validConfigYAML)

	applyErr := errors.New("routes rejected")
	calls := 0
	r, err := NewReloader(path, func(*Config) error {
		calls++
		if calls == 1 {
			return applyErr
		}
		return nil
	})
	require.NoError(t, err)

	writeConfig(t, path, updatedConfigYAML)

	err = r.Reload()
	require.ErrorIs(t, err, applyErr)
	assert.Equal(t, 8080, r.Current().Server.Port)

	// The failed content was never applied, so it is not treated as current.
	require.NoError(t, r.Reload())
	assert.Equal(t, 2, calls)
	assert.Equal(t, 8181, r.Current().Server.Port)
}

func TestReloader_Watch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, validConfigYAML)

	var lastPort atomic.Int64
	r, err := NewReloader(path, func(cfg *Config) error {
		lastPort.Store(int64(cfg.Server.Port))
		return nil
	}, WithSettleDelay(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	writeConfig(t, path, updatedConfigYAML)

	assert.Eventually(t, func() bool {
		return lastPort.Load() == 8181
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 8181, r.Current().Server.Port)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestReloader_Watch_MissingDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "conf")
	require.NoError(t, os.Mkdir(dir, 0o700))
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, validConfigYAML)

	r, err := NewReloader(path, nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	assert.Error(t, r.Watch(context.Background()))
}
