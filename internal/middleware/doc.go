// Package middleware provides net/http middleware for mug servers.
//
// Every middleware has the shape func(http.Handler) http.Handler so it can
// wrap a whole router through Chain, or be attached to a single route with
// router.Adapt. The CORS policy additionally exposes Middleware for that
// purpose.
//
// Provided middlewares:
//   - CorsPolicy: preflight and simple CORS handling
//   - Authenticate: 401 for requests an Authenticator rejects
//   - RateLimit: token bucket limiting, global or per client
//   - Recovery: panic recovery with a JSON 500
//   - RequestID: X-Request-ID propagation
//   - Logging: one structured log line per request
//   - Timeout: a deadline on the request context
package middleware
