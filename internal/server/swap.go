package server

import (
	"net/http"
	"sync/atomic"
)

// SwapHandler serves through the most recently stored handler. Requests
// already in flight finish on the handler they started with.
type SwapHandler struct {
	current atomic.Pointer[http.Handler]
}

// NewSwapHandler creates a SwapHandler serving h.
func NewSwapHandler(h http.Handler) *SwapHandler {
	s := &SwapHandler{}
	s.Store(h)
	return s
}

// Store publishes h for subsequent requests.
func (s *SwapHandler) Store(h http.Handler) {
	s.current.Store(&h)
}

// Load returns the handler currently served.
func (s *SwapHandler) Load() http.Handler {
	return *s.current.Load()
}

// ServeHTTP implements http.Handler.
func (s *SwapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Load().ServeHTTP(w, r)
}
