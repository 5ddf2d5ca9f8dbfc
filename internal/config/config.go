package config

import (
	"time"

	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/document"
	"github.com/careerlens/careerlens/internal/inference"
)

// Config represents the complete application configuration. Values come
// from defaults, an optional YAML file, a .env file and CAREERLENS_*
// environment variables, in increasing precedence.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Inference InferenceConfig `mapstructure:"inference"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Store     StoreConfig     `mapstructure:"store"`
	Events    EventsConfig    `mapstructure:"events"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Debug     DebugConfig     `mapstructure:"debug"`

	// Operations overrides the built-in policy of individual operations,
	// keyed by operation name (e.g. "cover-letter").
	Operations map[string]analysis.PolicyOverride `mapstructure:"operations"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AdmissionConfig controls caller identification and window eviction.
type AdmissionConfig struct {
	// KeyHeader, when set, names a request header that identifies the caller
	// ahead of the client address.
	KeyHeader      string `mapstructure:"key_header"`
	TrustForwarded bool   `mapstructure:"trust_forwarded"`
	SweepSchedule  string `mapstructure:"sweep_schedule"`
	EvictAfter     int    `mapstructure:"evict_after"`
}

// InferenceConfig selects the provider and bounds outbound calls.
type InferenceConfig struct {
	inference.ProviderConfig `mapstructure:",squash"`

	DefaultDeadline time.Duration `mapstructure:"default_deadline"`
	PacerRPS        float64       `mapstructure:"pacer_rps"`
	PacerBurst      int           `mapstructure:"pacer_burst"`
	SinkBuffer      int           `mapstructure:"sink_buffer"`
}

// DocumentsConfig bounds uploads and points at optional object storage.
type DocumentsConfig struct {
	document.Limits `mapstructure:",squash"`

	S3 document.S3Config `mapstructure:"s3"`
}

// StoreConfig contains the outcome log database configuration.
type StoreConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Driver is one of libsql, postgres or sqlite.
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`

	Retention         time.Duration `mapstructure:"retention"`
	RetentionSchedule string        `mapstructure:"retention_schedule"`
}

// EventsConfig configures the AMQP outcome publisher.
type EventsConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// StatsConfig configures Redis admission counters.
type StatsConfig struct {
	RedisURL  string        `mapstructure:"redis_url"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	TrackKeys bool          `mapstructure:"track_keys"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
