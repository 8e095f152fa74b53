// Package server runs HTTP listeners for mug.
//
// Server wraps an http.Server with an explicit Start/Stop lifecycle.
// SwapHandler lets a running server switch to a freshly built handler,
// which is how configuration reloads replace the router without mutating
// one that is serving.
package server
