package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

// DefaultClientTTL is how long an idle bucket is kept.
const DefaultClientTTL = 10 * time.Minute

// minSweepInterval bounds how often idle buckets are looked for.
const minSweepInterval = 10 * time.Second

// KeyFunc names the bucket a request draws from.
type KeyFunc func(*http.Request) string

// ClientAddrKey keys requests by the host part of RemoteAddr. Forwarding
// headers are not trusted.
func ClientAddrKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CredentialKey keys requests by a digest of the API key carried in header,
// so a caller keeps its bucket across addresses. Requests without the
// header fall back to ClientAddrKey. An empty header name means X-API-Key.
func CredentialKey(header string) KeyFunc {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return func(r *http.Request) string {
		credential := r.Header.Get(header)
		if credential == "" {
			return ClientAddrKey(r)
		}
		sum := sha256.Sum256([]byte(credential))
		return "key:" + hex.EncodeToString(sum[:8])
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket limiter. Without a key function all
// requests share one bucket; otherwise each key gets its own, and buckets
// idle for longer than the TTL are dropped while serving.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	key     KeyFunc
	ttl     time.Duration
	logger  observability.Logger
	metrics *MiddlewareMetrics
	now     func() time.Time

	mu        sync.Mutex
	shared    *rate.Limiter
	buckets   map[string]*bucket
	nextSweep time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for the rate limiter.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithClientTTL sets how long an idle bucket is kept.
func WithClientTTL(ttl time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		if ttl > 0 {
			rl.ttl = ttl
		}
	}
}

// WithKeyFunc gives every key its own bucket.
func WithKeyFunc(fn KeyFunc) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.key = fn
	}
}

// NewRateLimiter creates a limiter refilling rps tokens per second up to burst.
func NewRateLimiter(rps, burst int, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		ttl:     DefaultClientTTL,
		logger:  observability.NopLogger(),
		metrics: GetMiddlewareMetrics(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(rl)
	}
	rl.shared = rate.NewLimiter(rl.limit, rl.burst)

	return rl
}

// Allow reports whether a request under key may proceed. key is ignored
// when the limiter has no key function.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	limiter := rl.shared
	if rl.key != nil {
		limiter = rl.bucketFor(key, now)
	}

	if limiter.AllowN(now, 1) {
		rl.metrics.rateLimitAllowed.Inc()
		return true
	}
	rl.metrics.rateLimitRejected.Inc()
	return false
}

func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !now.Before(rl.nextSweep) {
		rl.sweep(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweep drops buckets idle for longer than the TTL. rl.mu must be held.
func (rl *RateLimiter) sweep(now time.Time) {
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.ttl {
			delete(rl.buckets, key)
			removed++
		}
	}
	rl.nextSweep = now.Add(max(rl.ttl/2, minSweepInterval))

	if removed > 0 {
		rl.logger.Debug("dropped idle rate limit buckets",
			observability.Int("removed", removed),
			observability.Int("remaining", len(rl.buckets)),
		)
	}
}

// Clients returns the number of keyed buckets.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Handler answers 429 with Retry-After once the request's bucket is empty.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var key string
		if rl.key != nil {
			key = rl.key(r)
		}

		if !rl.Allow(key) {
			rl.logger.WithContext(r.Context()).Warn("rate limit exceeded",
				observability.String("client_ip", ClientAddrKey(r)),
				observability.String("bucket", key),
				observability.String("path", r.URL.Path),
			)

			w.Header().Set(HeaderContentType, ContentTypeJSON)
			w.Header().Set(HeaderRetryAfter, "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, ErrRateLimitExceeded)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimitFromConfig creates rate limit middleware from the file
// configuration; a disabled limit passes requests through. Per-client
// limits key by client address. opts are applied last.
func RateLimitFromConfig(
	cfg *config.RateLimitConfig,
	logger observability.Logger,
	opts ...RateLimiterOption,
) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	base := []RateLimiterOption{
		WithRateLimiterLogger(logger),
		WithClientTTL(cfg.ClientTTL.Duration()),
	}
	if cfg.PerClient {
		base = append(base, WithKeyFunc(ClientAddrKey))
	}

	return NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, append(base, opts...)...).Handler
}
