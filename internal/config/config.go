package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the root configuration of a mug server.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
	Store     StoreConfig     `yaml:"store" json:"store"`
}

// ServerConfig configures the HTTP listener. RequestTimeout bounds each
// request context; zero disables it.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	RequestTimeout  Duration `yaml:"requestTimeout" json:"requestTimeout"`
}

// ListenAddress returns the host:port the server binds to.
func (s ServerConfig) ListenAddress() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// ListenAddress returns the host:port the metrics listener binds to.
func (m MetricsConfig) ListenAddress() string {
	return net.JoinHostPort(m.Address, strconv.Itoa(m.Port))
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
}

// CORSConfig configures the CORS policy. Empty lists select the policy
// defaults.
type CORSConfig struct {
	AllowedOrigins     []string `yaml:"allowedOrigins" json:"allowedOrigins"`
	AllowedMethods     []string `yaml:"allowedMethods" json:"allowedMethods"`
	AllowedHeaders     []string `yaml:"allowedHeaders" json:"allowedHeaders"`
	ExposedHeaders     []string `yaml:"exposedHeaders" json:"exposedHeaders"`
	AllowCredentials   bool     `yaml:"allowCredentials" json:"allowCredentials"`
	OptionsPassthrough bool     `yaml:"optionsPassthrough" json:"optionsPassthrough"`
	MaxAge             int      `yaml:"maxAge" json:"maxAge"`
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	Enabled bool           `yaml:"enabled" json:"enabled"`
	Header  string         `yaml:"header" json:"header"`
	APIKeys []APIKeyConfig `yaml:"apiKeys" json:"apiKeys"`
}

// APIKeyConfig is one accepted key. Hash is plaintext, sha256 (hex digest)
// or bcrypt.
type APIKeyConfig struct {
	Name string `yaml:"name" json:"name"`
	Key  string `yaml:"key" json:"key"`
	Hash string `yaml:"hash" json:"hash"`
}

// RateLimitConfig configures request rate limiting.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	RequestsPerSecond int      `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	Burst             int      `yaml:"burst" json:"burst"`
	PerClient         bool     `yaml:"perClient" json:"perClient"`
	ClientTTL         Duration `yaml:"clientTTL" json:"clientTTL"`
}

// StoreConfig selects the resource store.
type StoreConfig struct {
	Type  string      `yaml:"type" json:"type"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the Redis resource store.
type RedisConfig struct {
	URL          string   `yaml:"url" json:"url"`
	KeyPrefix    string   `yaml:"keyPrefix" json:"keyPrefix"`
	DialTimeout  Duration `yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// Default configuration values.
const (
	DefaultPort            = 8080
	DefaultMetricsPort     = 9090
	DefaultMetricsPath     = "/metrics"
	DefaultServiceName     = "mug"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultRedisTimeout    = 5 * time.Second
	DefaultRedisKeyPrefix  = "mug:"
)

// DefaultConfig returns the configuration used for omitted settings.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     Duration(DefaultReadTimeout),
			WriteTimeout:    Duration(DefaultWriteTimeout),
			IdleTimeout:     Duration(DefaultIdleTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			RequestTimeout:  Duration(DefaultRequestTimeout),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    DefaultMetricsPort,
			Path:    DefaultMetricsPath,
		},
		Tracing: TracingConfig{
			ServiceName:  DefaultServiceName,
			SamplingRate: 1.0,
		},
		Auth: AuthConfig{
			Header: "X-API-Key",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			PerClient:         true,
		},
		Store: StoreConfig{
			Type: StoreMemory,
			Redis: RedisConfig{
				KeyPrefix:    DefaultRedisKeyPrefix,
				DialTimeout:  Duration(DefaultRedisTimeout),
				ReadTimeout:  Duration(DefaultRedisTimeout),
				WriteTimeout: Duration(DefaultRedisTimeout),
			},
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{server: %s, store: %s, metrics: %t, tracing: %t, auth: %t, rateLimit: %t}",
		c.Server.ListenAddress(), c.Store.Type, c.Metrics.Enabled, c.Tracing.Enabled, c.Auth.Enabled, c.RateLimit.Enabled)
}
