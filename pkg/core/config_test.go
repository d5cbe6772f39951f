package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "weave", cfg.Name)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "weave:shape:", cfg.ShapeStore.Prefix)
	assert.Equal(t, 500, cfg.Diagnostics.MaxEntries)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WEAVE_NAME", "orders")
	t.Setenv("WEAVE_LOG_LEVEL", "debug")
	t.Setenv("WEAVE_PRELOAD_HINTS", "javax.servlet.Servlet, javax.jms.MessageListener ,")
	t.Setenv("WEAVE_SHAPESTORE_ENABLED", "yes")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("WEAVE_TELEMETRY_STDOUT", "1")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"javax.servlet.Servlet", "javax.jms.MessageListener"}, cfg.PreloadHints)
	assert.True(t, cfg.ShapeStore.Enabled)
	assert.Equal(t, "redis://cache:6379", cfg.ShapeStore.RedisURL)
	assert.True(t, cfg.Telemetry.Stdout)
}

func TestLoadFromEnvPrefersWeaveRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://generic:6379")
	t.Setenv("WEAVE_REDIS_URL", "redis://specific:6379")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, "redis://specific:6379", cfg.ShapeStore.RedisURL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "weave.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
name: billing
preload_hints:
  - javax.servlet.Filter
logging:
  level: warn
shape_store:
  enabled: true
  redis_url: redis://localhost:6379
`), 0o600))

	jsonPath := filepath.Join(dir, "weave.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"inventory","telemetry":{"enabled":true,"stdout":true}}`), 0o600))

	t.Run("yaml", func(t *testing.T) {
		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(yamlPath))
		assert.Equal(t, "billing", cfg.Name)
		assert.Equal(t, []string{"javax.servlet.Filter"}, cfg.PreloadHints)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.True(t, cfg.ShapeStore.Enabled)
		assert.Equal(t, "weave:shape:", cfg.ShapeStore.Prefix, "unset keys keep defaults")
	})

	t.Run("json", func(t *testing.T) {
		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(jsonPath))
		assert.Equal(t, "inventory", cfg.Name)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.True(t, cfg.Telemetry.Stdout)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile(filepath.Join(dir, "weave.toml"))
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Error(t, cfg.LoadFromFile(filepath.Join(dir, "absent.yaml")))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing name",
			mutate:  func(c *Config) { c.Name = "" },
			wantErr: ErrMissingConfiguration,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: ErrInvalidConfiguration,
		},
		{
			name:    "shape store without redis",
			mutate:  func(c *Config) { c.ShapeStore.Enabled = true },
			wantErr: ErrMissingConfiguration,
		},
		{
			name:    "telemetry without sink",
			mutate:  func(c *Config) { c.Telemetry.Enabled = true },
			wantErr: ErrMissingConfiguration,
		},
		{
			name:    "negative diagnostics size",
			mutate:  func(c *Config) { c.Diagnostics.MaxEntries = -1 },
			wantErr: ErrInvalidConfiguration,
		},
		{
			name: "telemetry with stdout",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Stdout = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(
		WithName("payments"),
		WithLogLevel("error"),
		WithPreloadHints("a.B"),
		WithShapeStore("redis://localhost:6379", "p:"),
		WithDiagnosticsAddr(":9464"),
	)
	require.NoError(t, err)
	assert.Equal(t, "payments", cfg.Name)
	assert.Equal(t, "p:", cfg.ShapeStore.Prefix)
	assert.Equal(t, ":9464", cfg.Diagnostics.Addr)

	_, err = NewConfig(WithName(""))
	assert.True(t, IsConfigurationError(err))

	_, err = NewConfig(WithTelemetry(true, ""))
	assert.True(t, errors.Is(err, ErrMissingConfiguration))
}
