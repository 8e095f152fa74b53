package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

// Common store errors.
var (
	// ErrNotFound indicates that no resource has the requested id.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidResource indicates that a resource failed validation.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrUnknownType indicates an unsupported store type.
	ErrUnknownType = errors.New("unknown store type")
)

// Resource is a stored document addressed by ID.
type Resource struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// Validate checks that the resource can be stored.
func (r Resource) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidResource)
	}
	return nil
}

// Store is a resource repository. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns the resource with id or ErrNotFound.
	Get(ctx context.Context, id string) (Resource, error)

	// GetAll returns every resource ordered by id.
	GetAll(ctx context.Context) ([]Resource, error)

	// Put inserts or replaces a resource.
	Put(ctx context.Context, r Resource) error

	// Delete removes the resource with id or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// New creates the store selected by cfg.Type.
func New(cfg *config.StoreConfig, logger observability.Logger) (Store, error) {
	if cfg == nil || cfg.Type == "" || cfg.Type == config.StoreMemory {
		logger.Info("using in-memory resource store")
		return NewMemoryStore(), nil
	}

	if cfg.Type == config.StoreRedis {
		return NewRedisStore(&cfg.Redis, logger)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
}
