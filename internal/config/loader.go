// Package config provides centralized configuration management for careerlens.
// Settings are layered by viper: defaults, an optional YAML config file, a
// .env file, and CAREERLENS_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/document"
)

// AppName is the config and data directory name.
const AppName = "careerlens"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CAREERLENS"

// EnvKeyReplacer maps config keys to environment variable suffixes,
// e.g. inference.api_key -> CAREERLENS_INFERENCE_API_KEY.
var EnvKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Configure prepares v for env overrides and registers the defaults.
func Configure(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()
	SetDefaults(v)
}

// SetDefaults registers every known key so environment variables can
// override it.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 10<<20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	// Admission defaults
	v.SetDefault("admission.key_header", "")
	v.SetDefault("admission.trust_forwarded", false)
	v.SetDefault("admission.sweep_schedule", "@every 10m")
	v.SetDefault("admission.evict_after", 3)

	// Inference defaults
	v.SetDefault("inference.provider", "openai")
	v.SetDefault("inference.model", "gpt-4o-mini")
	v.SetDefault("inference.base_url", "")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.timeout", "0s")
	v.SetDefault("inference.default_deadline", "30s")
	v.SetDefault("inference.pacer_rps", 0.0)
	v.SetDefault("inference.pacer_burst", 1)
	v.SetDefault("inference.sink_buffer", 256)

	// Document defaults
	v.SetDefault("documents.max_bytes", 5<<20)
	v.SetDefault("documents.max_chars", 60000)
	v.SetDefault("documents.s3.bucket", "")
	v.SetDefault("documents.s3.region", "auto")
	v.SetDefault("documents.s3.endpoint", "")
	v.SetDefault("documents.s3.access_key", "")
	v.SetDefault("documents.s3.secret_key", "")
	v.SetDefault("documents.s3.path_style", false)

	// Store defaults
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.retention", "720h")
	v.SetDefault("store.retention_schedule", "@daily")

	// Events and stats are off unless a URL is set
	v.SetDefault("events.url", "")
	v.SetDefault("events.exchange", "careerlens.events")
	v.SetDefault("stats.redis_url", "")
	v.SetDefault("stats.prefix", "careerlens:admission")
	v.SetDefault("stats.ttl", "24h")
	v.SetDefault("stats.track_keys", false)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// Load decodes the settings held by v into a Config and makes it current.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, fmt.Errorf("viper instance is required")
	}

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Store.Enabled && strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate checks cross-field constraints that decoding cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}
	if _, err := c.Policies(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "libsql", "postgres", "sqlite":
	default:
		return fmt.Errorf("store.driver %q is not supported (use libsql, postgres or sqlite)", c.Store.Driver)
	}
	return nil
}

// Policies resolves the operation overrides against the built-in policies.
func (c *Config) Policies() (map[analysis.Operation]analysis.Policy, error) {
	return analysis.ResolvePolicies(c.Operations)
}

// DocumentLimits returns the configured extraction limits.
func (c *Config) DocumentLimits() document.Limits {
	return c.Documents.Limits
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

// DefaultConfigDir returns the XDG-compliant config directory.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
