package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hookgate/hookgate/internal/core/ratelimit"
)

// Config represents the complete application configuration.
// Precedence: defaults, then the YAML config file, then HOOKGATE_* environment
// variables, then the process-wide INTEGRATION_* toggles.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Integrations IntegrationsConfig `mapstructure:"integrations"`
	Events       EventsConfig       `mapstructure:"events"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Health       HealthConfig       `mapstructure:"health"`
	Debug        DebugConfig        `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the integration store.
// Driver "libsql" uses Path (local file) or URL (Turso); driver "postgres"
// uses URL as a pgx connection string.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// IntegrationsConfig tunes the webhook pipeline.
type IntegrationsConfig struct {
	VerifySignatures bool             `mapstructure:"verify_signatures"`
	RateLimitEnabled bool             `mapstructure:"rate_limit_enabled"`
	MaxBodyBytes     int64            `mapstructure:"max_body_bytes"`
	Timeout          time.Duration    `mapstructure:"timeout"`
	SignatureMaxAge  time.Duration    `mapstructure:"signature_max_age"`
	RateLimit        ratelimit.Config `mapstructure:"rate_limit"`
	MetricsTTL       time.Duration    `mapstructure:"metrics_ttl"`
}

// EventsConfig configures the in-process event bus.
type EventsConfig struct {
	Topic      string `mapstructure:"topic"`
	BufferSize int64  `mapstructure:"buffer_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Environment is stamped on every server log line.
	Environment string `mapstructure:"environment"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether /metrics is exposed
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig controls the OpenTelemetry SDK tracer provider.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Exporter is "stdout" (pretty JSON on stderr) or "none" (spans are
	// sampled and carry trace ids but are not exported).
	Exporter string `mapstructure:"exporter"`

	// SampleRatio is the fraction of root spans sampled, 0 to 1.
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch strings.TrimSpace(c.Store.Driver) {
	case "", "libsql":
		if strings.TrimSpace(c.Store.Path) == "" && strings.TrimSpace(c.Store.URL) == "" {
			errs = append(errs, errors.New("store.path or store.url is required for libsql"))
		}
	case "postgres":
		if strings.TrimSpace(c.Store.URL) == "" {
			errs = append(errs, errors.New("store.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store.driver: %s", c.Store.Driver))
	}

	if c.Integrations.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("integrations.max_body_bytes must not be negative"))
	}
	if c.Integrations.Timeout < 0 {
		errs = append(errs, errors.New("integrations.timeout must not be negative"))
	}
	rl := c.Integrations.RateLimit
	if rl.MaxRequests < 0 || rl.BurstLimit < 0 || rl.Window < 0 {
		errs = append(errs, errors.New("integrations.rate_limit values must not be negative"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Tracing.Exporter)) {
	case "", "stdout", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported tracing.exporter: %s", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1: %g", c.Tracing.SampleRatio))
	}

	if level := strings.ToLower(strings.TrimSpace(c.Logging.Level)); level != "" && !validLogLevels[level] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s", c.Logging.Level))
	}

	return errors.Join(errs...)
}
