// Package config loads and validates application configuration from YAML
// files with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Worker        WorkerConfig        `yaml:"worker"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"ratelimit"`
	Stream        StreamConfig        `yaml:"stream"`
	Store         StoreConfig         `yaml:"store"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// IdentityConfig describes JWT settings for client-facing authentication.
type IdentityConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`
}

// WorkerConfig describes the outbound automation worker endpoint.
type WorkerConfig struct {
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	SigningSecret  string               `yaml:"signing_secret"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig describes circuit breaker settings for worker calls.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// AuthConfig describes token issuance and request verification settings.
type AuthConfig struct {
	// TokenTTL is the validity window of a per-process token.
	TokenTTL time.Duration `yaml:"token_ttl"`
	// FreshnessWindow bounds how old a signed request's timestamp may be.
	FreshnessWindow time.Duration `yaml:"freshness_window"`
}

// RateLimitConfig describes the minimum-interval command gate.
type RateLimitConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Driver    string        `yaml:"driver"` // "memory" or "redis"
	RedisAddr string        `yaml:"redis_addr"`
}

// StreamConfig describes the client event stream.
type StreamConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// Buffer is the per-sink channel capacity before best-effort drops.
	Buffer int `yaml:"buffer"`
}

// StoreConfig describes persistence settings.
type StoreConfig struct {
	Driver          string        `yaml:"driver"` // "memory" or "postgres"
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DispatchConfig describes the background command runner.
type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// ObservabilityConfig describes logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
}

// TracingConfig describes distributed trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // "otlp" or "stdout"
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Load reads, expands, parses, and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and rejects unusable configurations.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// The SSE stream holds connections open well past any normal
		// write timeout; handlers that stream disable the deadline.
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Worker.BaseURL == "" {
		return fmt.Errorf("config: worker.base_url is required")
	}
	if c.Worker.APIKey == "" {
		return fmt.Errorf("config: worker.api_key is required")
	}
	if c.Worker.SigningSecret == "" {
		return fmt.Errorf("config: worker.signing_secret is required")
	}
	if c.Worker.Timeout == 0 {
		c.Worker.Timeout = 10 * time.Second
	}
	if c.Worker.CircuitBreaker.FailureThreshold == 0 {
		c.Worker.CircuitBreaker.FailureThreshold = 5
	}
	if c.Worker.CircuitBreaker.SuccessThreshold == 0 {
		c.Worker.CircuitBreaker.SuccessThreshold = 2
	}
	if c.Worker.CircuitBreaker.Timeout == 0 {
		c.Worker.CircuitBreaker.Timeout = 30 * time.Second
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.FreshnessWindow == 0 {
		c.Auth.FreshnessWindow = 5 * time.Minute
	}

	if c.RateLimit.Interval == 0 {
		c.RateLimit.Interval = 10 * time.Second
	}
	switch c.RateLimit.Driver {
	case "", "memory":
		c.RateLimit.Driver = "memory"
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			return fmt.Errorf("config: ratelimit.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("config: unsupported ratelimit driver %q", c.RateLimit.Driver)
	}

	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = 30 * time.Second
	}
	if c.Stream.Buffer == 0 {
		c.Stream.Buffer = 16
	}

	switch c.Store.Driver {
	case "", "memory":
		c.Store.Driver = "memory"
	case "postgres":
		if c.Store.DSNEnv == "" {
			return fmt.Errorf("config: store.dsn_env is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.MaxOpenConns == 0 {
		c.Store.MaxOpenConns = 10
	}
	if c.Store.MaxIdleConns == 0 {
		c.Store.MaxIdleConns = 2
	}
	if c.Store.ConnMaxLifetime == 0 {
		c.Store.ConnMaxLifetime = time.Hour
	}

	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 4
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 64
	}

	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	switch c.Observability.Tracing.Exporter {
	case "", "otlp":
		c.Observability.Tracing.Exporter = "otlp"
	case "stdout":
	default:
		return fmt.Errorf("config: unsupported tracing exporter %q", c.Observability.Tracing.Exporter)
	}
	if c.Observability.Tracing.SamplingRate == 0 {
		c.Observability.Tracing.SamplingRate = 0.1
	}

	return nil
}
