// Package config provides centralized configuration management for hookgate.
// Values come from viper (defaults, YAML file, HOOKGATE_* environment) and are
// decoded into Config with mapstructure decode hooks.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the XDG config and data directories.
	AppName = "hookgate"
	// EnvPrefix prefixes environment overrides, e.g. HOOKGATE_SERVER_PORT.
	EnvPrefix = "HOOKGATE"

	// EnvVerifySignatures toggles signature verification process-wide.
	EnvVerifySignatures = "INTEGRATION_VERIFY_SIGNATURES"
	// EnvRateLimit toggles rate limiting process-wide.
	EnvRateLimit = "INTEGRATION_RATE_LIMIT"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers default configuration values on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.environment", "production")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Pipeline defaults
	v.SetDefault("integrations.verify_signatures", true)
	v.SetDefault("integrations.rate_limit_enabled", true)
	v.SetDefault("integrations.max_body_bytes", 1<<20)
	v.SetDefault("integrations.timeout", "10s")
	v.SetDefault("integrations.signature_max_age", "300s")
	v.SetDefault("integrations.rate_limit.max_requests", 100)
	v.SetDefault("integrations.rate_limit.window", "60s")
	v.SetDefault("integrations.rate_limit.burst_limit", 20)
	v.SetDefault("integrations.metrics_ttl", "24h")

	// Event bus defaults
	v.SetDefault("events.topic", "integration.events")
	v.SetDefault("events.buffer_size", 256)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.sample_ratio", 1.0)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
}

// ConfigureEnv binds HOOKGATE_* variables to nested keys.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the settings held by v into a validated Config.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Integrations.VerifySignatures = envToggle(EnvVerifySignatures, cfg.Integrations.VerifySignatures)
	cfg.Integrations.RateLimitEnabled = envToggle(EnvRateLimit, cfg.Integrations.RateLimitEnabled)

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// envToggle reads a process-wide toggle: unset keeps current, any value other
// than "false" enables.
func envToggle(name string, current bool) bool {
	value, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(value) == "" {
		return current
	}
	return !strings.EqualFold(strings.TrimSpace(value), "false")
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
