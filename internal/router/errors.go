package router

import "errors"

// Registration errors. Expected routing outcomes (not found, method not
// allowed) are reported through SearchResult, never as errors.
var (
	// ErrInvalidPattern indicates a malformed parameter segment or regular expression.
	ErrInvalidPattern = errors.New("invalid route pattern")

	// ErrInvalidPath indicates a route path that does not start with '/'.
	ErrInvalidPath = errors.New("route path must start with '/'")

	// ErrEmptyMethods indicates a registration without any HTTP method.
	ErrEmptyMethods = errors.New("at least one method is required")

	// ErrNilHandler indicates a registration without a handler.
	ErrNilHandler = errors.New("handler is required")
)
