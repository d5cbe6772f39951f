package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the weaving engine.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("orders-service"),
//	    WithLogLevel("debug"),
//	    WithPreloadHints("javax.servlet.Servlet", "javax.jms.MessageListener"),
//	)
type Config struct {
	Name string `json:"name" yaml:"name" env:"WEAVE_NAME"`

	// PreloadHints are supertypes commonly targeted by advice; the engine
	// resolves them speculatively when a loader is first seen.
	PreloadHints []string `json:"preload_hints" yaml:"preload_hints" env:"WEAVE_PRELOAD_HINTS"`

	// PreinitializeFile lists the types that must be loaded before the
	// transformer activates. Verified against the computed closure.
	PreinitializeFile string `json:"preinitialize_file" yaml:"preinitialize_file" env:"WEAVE_PREINITIALIZE_FILE"`

	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	ShapeStore  ShapeStoreConfig  `json:"shape_store" yaml:"shape_store"`
	Telemetry   TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"WEAVE_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"WEAVE_LOG_FORMAT" default:"json"`
}

// ShapeStoreConfig configures the shared Redis class-shape store.
type ShapeStoreConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"WEAVE_SHAPESTORE_ENABLED" default:"false"`
	RedisURL string `json:"redis_url" yaml:"redis_url" env:"WEAVE_REDIS_URL,REDIS_URL"`
	Prefix   string `json:"prefix" yaml:"prefix" env:"WEAVE_SHAPESTORE_PREFIX" default:"weave:shape:"`
}

// TelemetryConfig contains span export configuration.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"WEAVE_TELEMETRY_ENABLED" default:"false"`
	ServiceName string `json:"service_name" yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Endpoint    string `json:"endpoint" yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Stdout      bool   `json:"stdout" yaml:"stdout" env:"WEAVE_TELEMETRY_STDOUT" default:"false"`
	Insecure    bool   `json:"insecure" yaml:"insecure" env:"WEAVE_TELEMETRY_INSECURE" default:"true"`
}

// DiagnosticsConfig configures the weave diagnostics endpoint.
type DiagnosticsConfig struct {
	Addr       string `json:"addr" yaml:"addr" env:"WEAVE_DIAGNOSTICS_ADDR"`
	MaxEntries int    `json:"max_entries" yaml:"max_entries" env:"WEAVE_DIAGNOSTICS_MAX" default:"500"`
}

// Option is a functional option for configuring the engine.
// Options are applied after defaults and environment variables.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name: "weave",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		ShapeStore: ShapeStoreConfig{
			Prefix: "weave:shape:",
		},
		Telemetry: TelemetryConfig{
			Insecure: true,
		},
		Diagnostics: DiagnosticsConfig{
			MaxEntries: 500,
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults but are overridden by functional options.
//
// Variable naming convention:
//   - Engine-specific: WEAVE_<SETTING>
//   - Standard variables: REDIS_URL, OTEL_SERVICE_NAME, OTEL_EXPORTER_OTLP_ENDPOINT
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("WEAVE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("WEAVE_PRELOAD_HINTS"); v != "" {
		c.PreloadHints = parseStringList(v)
	}
	if v := os.Getenv("WEAVE_PREINITIALIZE_FILE"); v != "" {
		c.PreinitializeFile = v
	}

	if v := os.Getenv("WEAVE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WEAVE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("WEAVE_SHAPESTORE_ENABLED"); v != "" {
		c.ShapeStore.Enabled = parseBool(v)
	}
	if v := os.Getenv("WEAVE_REDIS_URL"); v != "" {
		c.ShapeStore.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.ShapeStore.RedisURL = v
	}
	if v := os.Getenv("WEAVE_SHAPESTORE_PREFIX"); v != "" {
		c.ShapeStore.Prefix = v
	}

	if v := os.Getenv("WEAVE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("WEAVE_TELEMETRY_STDOUT"); v != "" {
		c.Telemetry.Stdout = parseBool(v)
	}
	if v := os.Getenv("WEAVE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = parseBool(v)
	}

	if v := os.Getenv("WEAVE_DIAGNOSTICS_ADDR"); v != "" {
		c.Diagnostics.Addr = v
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// The file extension decides the decoder.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
//
// Validation rules:
//   - Name is required
//   - Log level must be one of debug, info, warn, error
//   - Redis URL is required when the shape store is enabled
//   - An endpoint or stdout export is required when telemetry is enabled
func (c *Config) Validate() error {
	if c.Name == "" {
		return &WeaveError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "engine name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return &WeaveError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid log level: %q", c.Logging.Level),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.ShapeStore.Enabled && c.ShapeStore.RedisURL == "" {
		return &WeaveError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "redis URL is required when the shape store is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" && !c.Telemetry.Stdout {
		return &WeaveError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry endpoint is required when telemetry is enabled (or use stdout export)",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Diagnostics.MaxEntries < 0 {
		return &WeaveError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid diagnostics max entries: %d", c.Diagnostics.MaxEntries),
			Err:     ErrInvalidConfiguration,
		}
	}

	return nil
}

// parseStringList splits a comma-separated string into a slice of strings.
// Whitespace is trimmed from each element, and empty strings are filtered out.
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WithName sets the engine name
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty: %w", ErrInvalidConfiguration)
		}
		c.Name = name
		return nil
	}
}

// WithLogLevel sets the logging level
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging format ("json" or "text")
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithPreloadHints appends supertype names to resolve speculatively.
func WithPreloadHints(names ...string) Option {
	return func(c *Config) error {
		c.PreloadHints = append(c.PreloadHints, names...)
		return nil
	}
}

// WithShapeStore enables the Redis-backed class shape store.
func WithShapeStore(redisURL, prefix string) Option {
	return func(c *Config) error {
		c.ShapeStore.Enabled = true
		c.ShapeStore.RedisURL = redisURL
		if prefix != "" {
			c.ShapeStore.Prefix = prefix
		}
		return nil
	}
}

// WithTelemetry enables span export to an OTLP endpoint
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithStdoutTelemetry enables span export to stdout
func WithStdoutTelemetry() Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Stdout = true
		return nil
	}
}

// WithDiagnosticsAddr sets the listen address of the diagnostics endpoint
func WithDiagnosticsAddr(addr string) Option {
	return func(c *Config) error {
		c.Diagnostics.Addr = addr
		return nil
	}
}

// WithConfigFile loads configuration from a file
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a new configuration with the given options.
// Order: defaults, then environment, then options, then validation.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
