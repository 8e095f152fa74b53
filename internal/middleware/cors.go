package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
	"github.com/vyrodovalexey/mug/internal/router"
)

const wildcard = "*"

// nullOrigin is sent by browsers for opaque origins (sandboxed frames,
// file URLs). Explicit origin lists accept it.
const nullOrigin = "null"

// Defaults applied when a list is left empty.
var (
	DefaultAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodHead}
	DefaultAllowedHeaders = []string{"origin"}
)

// CorsConfig contains CORS configuration.
type CorsConfig struct {
	// AllowedOrigins lists accepted origins. Empty or "*" accepts any origin.
	AllowedOrigins []string
	// AllowedMethods lists methods accepted in preflight. Empty means GET, POST, HEAD.
	AllowedMethods []string
	// AllowedHeaders lists request headers accepted in preflight. Empty
	// means Origin only; "*" accepts any header.
	AllowedHeaders []string
	// ExposedHeaders lists response headers readable by the client.
	ExposedHeaders []string
	// AllowCredentials sets Access-Control-Allow-Credentials.
	AllowCredentials bool
	// UseOptionsPassthrough forwards preflight requests to the next handler
	// instead of answering them with 204.
	UseOptionsPassthrough bool
	// MaxAge is the preflight cache lifetime in seconds; <= 0 omits the header.
	MaxAge int
}

// CorsPolicy classifies requests as preflight or simple and annotates
// responses with the CORS headers the configuration allows. A rejected
// request gets no Access-Control-Allow-* headers; it is never answered
// with an error.
//
// A CorsPolicy is immutable after construction.
type CorsPolicy struct {
	allowAllOrigins    bool
	allowedOrigins     []string
	allowAllHeaders    bool
	allowedHeaders     []string
	allowedMethods     []string
	exposedHeaders     []string
	allowCredentials   bool
	optionsPassthrough bool
	maxAge             int

	allowedHeadersValue string
	exposedHeadersValue string
	maxAgeValue         string

	logger  observability.Logger
	metrics *MiddlewareMetrics
}

// CorsOption is a functional option for configuring the CORS policy.
type CorsOption func(*CorsPolicy)

// WithCorsLogger sets the logger for the CORS policy.
func WithCorsLogger(logger observability.Logger) CorsOption {
	return func(p *CorsPolicy) {
		p.logger = logger
	}
}

// NewCorsPolicy builds a policy from cfg.
func NewCorsPolicy(cfg CorsConfig, opts ...CorsOption) *CorsPolicy {
	p := &CorsPolicy{
		allowCredentials:   cfg.AllowCredentials,
		optionsPassthrough: cfg.UseOptionsPassthrough,
		maxAge:             cfg.MaxAge,
		logger:             observability.NopLogger(),
		metrics:            GetMiddlewareMetrics(),
	}

	if len(cfg.AllowedOrigins) == 0 {
		p.allowAllOrigins = true
	} else {
		for _, origin := range cfg.AllowedOrigins {
			origin = strings.ToLower(origin)
			if origin == wildcard {
				p.allowAllOrigins = true
				p.allowedOrigins = nil
				break
			}
			p.allowedOrigins = append(p.allowedOrigins, origin)
		}
		if !p.allowAllOrigins {
			p.allowedOrigins = append(p.allowedOrigins, nullOrigin)
		}
	}

	if len(cfg.AllowedHeaders) == 0 {
		p.allowedHeaders = slices.Clone(DefaultAllowedHeaders)
	} else {
		for _, header := range cfg.AllowedHeaders {
			header = strings.ToLower(header)
			if header == wildcard {
				p.allowAllHeaders = true
				break
			}
			p.allowedHeaders = append(p.allowedHeaders, header)
		}
	}

	if len(cfg.AllowedMethods) == 0 {
		p.allowedMethods = slices.Clone(DefaultAllowedMethods)
	} else {
		for _, method := range cfg.AllowedMethods {
			p.allowedMethods = append(p.allowedMethods, strings.ToUpper(method))
		}
	}

	p.exposedHeaders = slices.Clone(cfg.ExposedHeaders)

	p.allowedHeadersValue = strings.Join(p.allowedHeaders, ", ")
	p.exposedHeadersValue = strings.Join(p.exposedHeaders, ", ")
	p.maxAgeValue = strconv.Itoa(p.maxAge)

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// NewCorsPolicyFromConfig builds a policy from the file configuration.
func NewCorsPolicyFromConfig(cfg *config.CORSConfig, opts ...CorsOption) *CorsPolicy {
	if cfg == nil {
		return NewCorsPolicy(CorsConfig{}, opts...)
	}

	return NewCorsPolicy(CorsConfig{
		AllowedOrigins:        cfg.AllowedOrigins,
		AllowedMethods:        cfg.AllowedMethods,
		AllowedHeaders:        cfg.AllowedHeaders,
		ExposedHeaders:        cfg.ExposedHeaders,
		AllowCredentials:      cfg.AllowCredentials,
		UseOptionsPassthrough: cfg.OptionsPassthrough,
		MaxAge:                cfg.MaxAge,
	}, opts...)
}

// Handler wraps next with the policy.
func (p *CorsPolicy) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPreflight(r) {
			p.handlePreflight(w, r)
			if p.optionsPassthrough {
				next.ServeHTTP(w, r)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		p.handleSimple(w, r)
		next.ServeHTTP(w, r)
	})
}

// Middleware returns the policy as a route middleware.
func (p *CorsPolicy) Middleware() router.Middleware {
	return router.Adapt(p.Handler)
}

// IsPreflight reports whether r is a CORS preflight request.
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get(HeaderOrigin) != "" &&
		r.Header.Get(HeaderAccessControlRequestMethod) != ""
}

func (p *CorsPolicy) handlePreflight(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	origin := r.Header.Get(HeaderOrigin)

	headers.Add(HeaderVary, HeaderOrigin)
	headers.Add(HeaderVary, HeaderAccessControlRequestMethod)
	headers.Add(HeaderVary, HeaderAccessControlRequestHeaders)

	if !p.IsOriginAllowed(origin) {
		p.reject(r, corsPreflightRejected, "origin not allowed")
		return
	}

	method := r.Header.Get(HeaderAccessControlRequestMethod)
	if !p.IsMethodAllowed(method) {
		p.reject(r, corsPreflightRejected, "method not allowed")
		return
	}

	requested := DeriveHeaders(r.Header.Get(HeaderAccessControlRequestHeaders))
	if !p.AreHeadersAllowed(requested) {
		p.reject(r, corsPreflightRejected, "headers not allowed")
		return
	}

	p.setAllowOrigin(headers, origin)
	headers.Set(HeaderAccessControlAllowMethods, method)

	// The configured list is sent as is, even under a wildcard.
	if len(requested) > 0 {
		headers.Set(HeaderAccessControlAllowHeaders, p.allowedHeadersValue)
	}
	if p.allowCredentials {
		headers.Set(HeaderAccessControlAllowCredentials, "true")
	}
	if p.maxAge > 0 {
		headers.Set(HeaderAccessControlMaxAge, p.maxAgeValue)
	}

	p.metrics.corsRequestsTotal.WithLabelValues(corsPreflight).Inc()
}

func (p *CorsPolicy) handleSimple(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	origin := r.Header.Get(HeaderOrigin)

	headers.Add(HeaderVary, HeaderOrigin)

	if origin == "" {
		p.metrics.corsRequestsTotal.WithLabelValues(corsNone).Inc()
		return
	}

	if !p.IsOriginAllowed(origin) {
		p.reject(r, corsSimpleRejected, "origin not allowed")
		return
	}

	p.setAllowOrigin(headers, origin)
	if len(p.exposedHeaders) > 0 {
		headers.Set(HeaderAccessControlExposeHeaders, p.exposedHeadersValue)
	}
	if p.allowCredentials {
		headers.Set(HeaderAccessControlAllowCredentials, "true")
	}

	p.metrics.corsRequestsTotal.WithLabelValues(corsSimple).Inc()
}

func (p *CorsPolicy) setAllowOrigin(headers http.Header, origin string) {
	if p.allowAllOrigins {
		headers.Set(HeaderAccessControlAllowOrigin, wildcard)
		return
	}
	headers.Set(HeaderAccessControlAllowOrigin, origin)
}

func (p *CorsPolicy) reject(r *http.Request, kind, reason string) {
	p.metrics.corsRequestsTotal.WithLabelValues(kind).Inc()
	p.logger.WithContext(r.Context()).Debug("cors request rejected",
		observability.String("reason", reason),
		observability.String("origin", r.Header.Get(HeaderOrigin)),
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
	)
}

// IsOriginAllowed reports whether origin matches the allow-list. Matching
// is case-insensitive and otherwise exact.
func (p *CorsPolicy) IsOriginAllowed(origin string) bool {
	if p.allowAllOrigins {
		return true
	}
	return slices.Contains(p.allowedOrigins, strings.ToLower(origin))
}

// IsMethodAllowed reports whether method may be requested in a preflight.
// OPTIONS is always allowed.
func (p *CorsPolicy) IsMethodAllowed(method string) bool {
	if len(p.allowedMethods) == 0 {
		return true
	}
	method = strings.ToUpper(method)
	if method == http.MethodOptions {
		return true
	}
	return slices.Contains(p.allowedMethods, method)
}

// AreHeadersAllowed reports whether every requested header token is in the
// allow-list. Tokens are compared as produced by DeriveHeaders.
func (p *CorsPolicy) AreHeadersAllowed(requested []string) bool {
	if p.allowAllHeaders || len(requested) == 0 {
		return true
	}
	for _, header := range requested {
		if !slices.Contains(p.allowedHeaders, header) {
			return false
		}
	}
	return true
}

// DeriveHeaders tokenizes an Access-Control-Request-Headers value.
//
// Lowercase letters, digits, '_', '-' and '.' are kept, uppercase letters
// are folded to lowercase, a space or comma ends the current token, and any
// other byte is dropped. Interior spaces therefore split a name in two:
// "x- test" yields ["x-", "test"].
func DeriveHeaders(raw string) []string {
	if raw == "" {
		return nil
	}

	var (
		tokens []string
		token  = make([]byte, 0, len(raw))
	)

	flush := func() {
		if len(token) > 0 {
			tokens = append(tokens, string(token))
			token = token[:0]
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
			token = append(token, c)
		case c >= 'A' && c <= 'Z':
			token = append(token, c+('a'-'A'))
		case c == ' ', c == ',':
			flush()
		}
	}
	flush()

	return tokens
}

func (p *CorsPolicy) String() string {
	return fmt.Sprintf(
		"CorsPolicy{allowAllOrigins: %t, allowedOrigins: %v, allowAllHeaders: %t, allowedHeaders: %v, "+
			"allowedMethods: %v, exposedHeaders: %v, allowCredentials: %t, optionsPassthrough: %t, maxAge: %d}",
		p.allowAllOrigins, p.allowedOrigins, p.allowAllHeaders, p.allowedHeaders,
		p.allowedMethods, p.exposedHeaders, p.allowCredentials, p.optionsPassthrough, p.maxAge,
	)
}
