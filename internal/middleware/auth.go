package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

// DefaultAPIKeyHeader is the header checked by the API key authenticator.
const DefaultAPIKeyHeader = "X-API-Key"

// Key hashing schemes.
const (
	HashPlaintext = "plaintext"
	HashSHA256    = "sha256"
	HashBcrypt    = "bcrypt"
)

// Authenticator decides whether a request is authenticated.
type Authenticator func(r *http.Request) bool

// Authenticate returns a middleware that answers 401 with an empty body when
// authenticate rejects the request. CORS preflight requests are let through
// so browsers can discover the policy before sending credentials.
func Authenticate(authenticate Authenticator, logger observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	metrics := GetMiddlewareMetrics()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPreflight(r) || authenticate(r) {
				metrics.authTotal.WithLabelValues("allowed").Inc()
				next.ServeHTTP(w, r)
				return
			}

			metrics.authTotal.WithLabelValues("denied").Inc()
			logger.WithContext(r.Context()).Debug("request not authenticated",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
			)
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
}

// APIKey is an accepted key in the form given by Hash.
type APIKey struct {
	Name  string
	Value string
	Hash  string
}

type storedKey struct {
	name  string
	value []byte
	hash  string
}

// NewAPIKeyAuthenticator accepts requests whose header carries one of keys.
// An empty header name means X-API-Key.
func NewAPIKeyAuthenticator(header string, keys []APIKey) Authenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}

	stored := make([]storedKey, 0, len(keys))
	for _, k := range keys {
		hash := strings.ToLower(k.Hash)
		if hash == "" {
			hash = HashPlaintext
		}
		value := []byte(k.Value)
		if hash == HashSHA256 {
			value = []byte(strings.ToLower(k.Value))
		}
		stored = append(stored, storedKey{name: k.Name, value: value, hash: hash})
	}

	return func(r *http.Request) bool {
		presented := r.Header.Get(header)
		if presented == "" {
			return false
		}
		for _, k := range stored {
			if k.matches(presented) {
				return true
			}
		}
		return false
	}
}

// NewAPIKeyAuthenticatorFromConfig builds an API key authenticator from
// the file configuration. It returns nil when authentication is disabled.
func NewAPIKeyAuthenticatorFromConfig(cfg *config.AuthConfig) Authenticator {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	keys := make([]APIKey, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys = append(keys, APIKey{Name: k.Name, Value: k.Key, Hash: k.Hash})
	}
	return NewAPIKeyAuthenticator(cfg.Header, keys)
}

func (k storedKey) matches(presented string) bool {
	switch k.hash {
	case HashBcrypt:
		return bcrypt.CompareHashAndPassword(k.value, []byte(presented)) == nil
	case HashSHA256:
		sum := sha256.Sum256([]byte(presented))
		digest := []byte(hex.EncodeToString(sum[:]))
		return subtle.ConstantTimeCompare(digest, k.value) == 1
	default:
		return subtle.ConstantTimeCompare([]byte(presented), k.value) == 1
	}
}
