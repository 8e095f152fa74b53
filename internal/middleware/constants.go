package middleware

// HTTP header names.
const (
	HeaderContentType   = "Content-Type"
	HeaderRetryAfter    = "Retry-After"
	HeaderVary          = "Vary"
	HeaderXRequestID    = "X-Request-ID"
	HeaderXForwardedFor = "X-Forwarded-For"
)

// CORS header names.
const (
	HeaderOrigin                        = "Origin"
	HeaderAccessControlRequestMethod    = "Access-Control-Request-Method"
	HeaderAccessControlRequestHeaders   = "Access-Control-Request-Headers"
	HeaderAccessControlAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAccessControlAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAccessControlAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAccessControlAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAccessControlExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderAccessControlMaxAge           = "Access-Control-Max-Age"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json"

// Error response bodies.
const (
	ErrRateLimitExceeded   = `{"error":"rate limit exceeded"}`
	ErrInternalServerError = `{"error":"internal server error"}`
)
