package store

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps resources in a map. It is the default store and
// loses its content on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	resources map[string]Resource
	metrics   *Metrics
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: make(map[string]Resource),
		metrics:   GetMetrics(),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (r Resource, err error) {
	defer s.observe("get", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok {
		return Resource{}, ErrNotFound
	}
	return r, nil
}

// GetAll implements Store.
func (s *MemoryStore) GetAll(_ context.Context) (_ []Resource, err error) {
	defer s.observe("get_all", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.resources))
	out := make([]Resource, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.resources[id])
	}
	return out, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, r Resource) (err error) {
	defer s.observe("put", time.Now(), &err)

	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.ID] = r
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[id]; !ok {
		return ErrNotFound
	}
	delete(s.resources, id)
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) observe(operation string, start time.Time, err *error) {
	s.metrics.record(backendMemory, operation, *err, time.Since(start).Seconds())
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
