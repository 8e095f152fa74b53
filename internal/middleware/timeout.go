package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds the request context with timeout. Handlers and the store
// observe the deadline through r.Context(); the response is left to the
// handler so that panics and partial writes keep their normal path.
// A non-positive timeout disables the middleware.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
