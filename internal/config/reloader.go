package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/mug/internal/observability"
)

// DefaultSettleDelay is how long the file must stay quiet before a change
// is read. Editors usually write a file in several steps.
const DefaultSettleDelay = 100 * time.Millisecond

// ApplyFunc installs a validated configuration. A returned error keeps the
// previous configuration current.
type ApplyFunc func(*Config) error

// ReloadHook is called after every reload that was not skipped. err is nil
// when the new configuration was applied.
type ReloadHook func(err error)

// Reloader keeps the configuration read from one file current. A reload
// reads, validates and applies the file, and is skipped when the content
// is byte-identical to the last applied one.
type Reloader struct {
	path        string
	apply       ApplyFunc
	hook        ReloadHook
	logger      observability.Logger
	settleDelay time.Duration

	mu      sync.Mutex
	digest  [sha256.Size]byte
	current atomic.Pointer[Config]
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		r.settleDelay = d
	}
}

// WithLogger sets the reloader logger.
func WithLogger(logger observability.Logger) ReloaderOption {
	return func(r *Reloader) {
		r.logger = logger
	}
}

// WithReloadHook sets a hook called with the outcome of each reload.
func WithReloadHook(hook ReloadHook) ReloaderOption {
	return func(r *Reloader) {
		r.hook = hook
	}
}

// NewReloader reads and validates the file at path. The initial
// configuration is available from Current and is not passed to apply.
func NewReloader(path string, apply ApplyFunc, opts ...ReloaderOption) (*Reloader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	r := &Reloader{
		path:        absPath,
		apply:       apply,
		logger:      observability.NopLogger(),
		settleDelay: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(r)
	}

	cfg, digest, err := readValidConfig(absPath)
	if err != nil {
		return nil, err
	}
	r.digest = digest
	r.current.Store(cfg)

	return r, nil
}

// Current returns the last applied configuration.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// Reload reads the file now. Failures are logged, reported to the hook and
// returned; the current configuration stays in place.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, digest, err := readValidConfig(r.path)
	if err == nil && digest == r.digest {
		r.logger.Debug("configuration unchanged", observability.String("path", r.path))
		return nil
	}
	if err == nil && r.apply != nil {
		if applyErr := r.apply(cfg); applyErr != nil {
			err = fmt.Errorf("failed to apply configuration: %w", applyErr)
		}
	}
	if err != nil {
		r.logger.Error("configuration reload failed",
			observability.String("path", r.path),
			observability.Error(err),
		)
		r.report(err)
		return err
	}

	r.digest = digest
	r.current.Store(cfg)

	r.logger.Info("configuration reloaded", observability.String("path", r.path))
	r.report(nil)
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so that editors replacing the file by rename are
// noticed. Watch returns nil once ctx is done.
func (r *Reloader) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(r.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	r.logger.Info("watching configuration file", observability.String("path", r.path))

	settle := time.NewTimer(r.settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if r.touches(event) {
				settle.Reset(r.settleDelay)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("configuration watch error", observability.Error(err))
		case <-settle.C:
			_ = r.Reload()
		}
	}
}

// touches reports whether event may have changed the watched file.
func (r *Reloader) touches(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != r.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func (r *Reloader) report(err error) {
	if r.hook != nil {
		r.hook(err)
	}
}

// readValidConfig loads the file at path, validates it and returns the
// digest of the raw bytes.
func readValidConfig(path string) (*Config, [sha256.Size]byte, error) {
	var digest [sha256.Size]byte

	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, digest, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := LoadConfigFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, digest, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, digest, err
	}

	return cfg, sha256.Sum256(data), nil
}
