package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// Is reports ErrInvalidConfig so callers can match with errors.Is.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
	validHashes     = []string{"", "plaintext", "sha256", "bcrypt"}
)

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates cfg and returns ValidationErrors on failure.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = nil

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateLogging(&cfg.Logging)
	v.validateMetrics(&cfg.Metrics, cfg.Server.Port)
	v.validateTracing(&cfg.Tracing)
	v.validateCORS(&cfg.CORS)
	v.validateAuth(&cfg.Auth)
	v.validateRateLimit(&cfg.RateLimit)
	v.validateStore(&cfg.Store)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validatePort(path string, port int) {
	if port < 1 || port > 65535 {
		v.addError(path, fmt.Sprintf("port must be between 1 and 65535, got %d", port))
	}
}

func (v *Validator) validateServer(s *ServerConfig) {
	v.validatePort("server.port", s.Port)
	if s.ReadTimeout < 0 {
		v.addError("server.readTimeout", "must not be negative")
	}
	if s.WriteTimeout < 0 {
		v.addError("server.writeTimeout", "must not be negative")
	}
	if s.IdleTimeout < 0 {
		v.addError("server.idleTimeout", "must not be negative")
	}
	if s.ShutdownTimeout <= 0 {
		v.addError("server.shutdownTimeout", "must be positive")
	}
	if s.RequestTimeout < 0 {
		v.addError("server.requestTimeout", "must not be negative")
	}
}

func (v *Validator) validateLogging(l *LoggingConfig) {
	if l.Level != "" && !slices.Contains(validLogLevels, strings.ToLower(l.Level)) {
		v.addError("logging.level", fmt.Sprintf("unknown level %q", l.Level))
	}
	if l.Format != "" && !slices.Contains(validLogFormats, strings.ToLower(l.Format)) {
		v.addError("logging.format", fmt.Sprintf("unknown format %q", l.Format))
	}
}

func (v *Validator) validateMetrics(m *MetricsConfig, serverPort int) {
	if !m.Enabled {
		return
	}
	v.validatePort("metrics.port", m.Port)
	if m.Port == serverPort {
		v.addError("metrics.port", "must differ from server.port")
	}
	if !strings.HasPrefix(m.Path, "/") {
		v.addError("metrics.path", "must start with /")
	}
}

func (v *Validator) validateTracing(t *TracingConfig) {
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.addError("tracing.samplingRate", fmt.Sprintf("must be between 0 and 1, got %v", t.SamplingRate))
	}
	if t.Enabled && t.ServiceName == "" {
		v.addError("tracing.serviceName", "is required when tracing is enabled")
	}
}

func (v *Validator) validateCORS(c *CORSConfig) {
	if c.MaxAge < 0 {
		v.addError("cors.maxAge", "must not be negative")
	}
	for i, origin := range c.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			v.addError(fmt.Sprintf("cors.allowedOrigins[%d]", i), "must not be empty")
		}
	}
}

func (v *Validator) validateAuth(a *AuthConfig) {
	if !a.Enabled {
		return
	}
	if len(a.APIKeys) == 0 {
		v.addError("auth.apiKeys", "at least one key is required when auth is enabled")
	}
	for i, k := range a.APIKeys {
		path := fmt.Sprintf("auth.apiKeys[%d]", i)
		if k.Key == "" {
			v.addError(path+".key", "is required")
		}
		if !slices.Contains(validHashes, strings.ToLower(k.Hash)) {
			v.addError(path+".hash", fmt.Sprintf("unknown hash %q", k.Hash))
		}
	}
}

func (v *Validator) validateRateLimit(r *RateLimitConfig) {
	if !r.Enabled {
		return
	}
	if r.RequestsPerSecond <= 0 {
		v.addError("rateLimit.requestsPerSecond", "must be positive")
	}
	if r.Burst <= 0 {
		v.addError("rateLimit.burst", "must be positive")
	}
	if r.ClientTTL < 0 {
		v.addError("rateLimit.clientTTL", "must not be negative")
	}
}

func (v *Validator) validateStore(s *StoreConfig) {
	switch s.Type {
	case StoreMemory:
	case StoreRedis:
		if s.Redis.URL == "" {
			v.addError("store.redis.url", "is required for the redis store")
		}
	default:
		v.addError("store.type", fmt.Sprintf("must be %q or %q, got %q", StoreMemory, StoreRedis, s.Type))
	}
}
