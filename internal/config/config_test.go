package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		TSB: TSBConfig{
			Location:     "./data/tsb",
			MaxLength:    Duration(30 * time.Minute),
			TrickplayFPS: 4,
		},
		Storage: StorageConfig{
			Backend:           BackendFile,
			MaxCapacity:       ByteSize(10 << 30),
			MinFreePercentage: 5,
		},
		Cache: CacheConfig{InitFragmentTTL: Duration(time.Hour)},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// TSB defaults
	assert.Equal(t, "./data/tsb", cfg.TSB.Location)
	assert.Equal(t, 30*time.Minute, cfg.TSB.MaxLength.Duration())
	assert.InDelta(t, 1800.0, cfg.TSB.MaxLengthSeconds(), 0.0001)
	assert.Equal(t, 4, cfg.TSB.TrickplayFPS)
	assert.False(t, cfg.TSB.IFrameExtraction)
	assert.False(t, cfg.TSB.ProgressLogging)

	// Storage defaults
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, int64(10*1024*1024*1024), cfg.Storage.MaxCapacity.Bytes())
	assert.Equal(t, 5, cfg.Storage.MinFreePercentage)

	// Cache defaults
	assert.Equal(t, time.Hour, cfg.Cache.InitFragmentTTL.Duration())
	assert.Equal(t, 10*time.Minute, cfg.Cache.CleanupInterval.Duration())
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "trace"
  format: "text"

tsb:
  location: "/var/lib/tsb"
  max_length: "2h"
  trickplay_fps: 8
  iframe_extraction: true
  progress_logging: true

storage:
  backend: "badger"
  max_capacity: "512MiB"
  min_free_percentage: 10

cache:
  init_fragment_ttl: "1d"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/tsb", cfg.TSB.Location)
	assert.Equal(t, 2*time.Hour, cfg.TSB.MaxLength.Duration())
	assert.Equal(t, 8, cfg.TSB.TrickplayFPS)
	assert.True(t, cfg.TSB.IFrameExtraction)
	assert.True(t, cfg.TSB.ProgressLogging)
	assert.Equal(t, BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, int64(512*1024*1024), cfg.Storage.MaxCapacity.Bytes())
	assert.Equal(t, 10, cfg.Storage.MinFreePercentage)
	assert.Equal(t, 24*time.Hour, cfg.Cache.InitFragmentTTL.Duration())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TSB_LOGGING_LEVEL", "warn")
	t.Setenv("TSB_TSB_TRICKPLAY_FPS", "6")
	t.Setenv("TSB_TSB_MAX_LENGTH", "45m")
	t.Setenv("TSB_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 6, cfg.TSB.TrickplayFPS)
	assert.Equal(t, 45*time.Minute, cfg.TSB.MaxLength.Duration())
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
tsb:
  trickplay_fps: 2
storage:
  backend: "file"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	t.Setenv("TSB_TSB_TRICKPLAY_FPS", "12")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.TSB.TrickplayFPS)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validTestConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		errContains string
	}{
		{"invalid log level", func(c *Config) { c.Logging.Level = "invalid" }, "logging.level"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"empty location", func(c *Config) { c.TSB.Location = "" }, "tsb.location"},
		{"zero max length", func(c *Config) { c.TSB.MaxLength = 0 }, "tsb.max_length"},
		{"negative max length", func(c *Config) { c.TSB.MaxLength = Duration(-time.Second) }, "tsb.max_length"},
		{"zero trickplay fps", func(c *Config) { c.TSB.TrickplayFPS = 0 }, "tsb.trickplay_fps"},
		{"invalid session log level", func(c *Config) { c.TSB.LogLevel = "loud" }, "tsb.log_level"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"negative capacity", func(c *Config) { c.Storage.MaxCapacity = -1 }, "storage.max_capacity"},
		{"negative free percentage", func(c *Config) { c.Storage.MinFreePercentage = -1 }, "min_free_percentage"},
		{"free percentage too high", func(c *Config) { c.Storage.MinFreePercentage = 101 }, "min_free_percentage"},
		{"negative cache ttl", func(c *Config) { c.Cache.InitFragmentTTL = Duration(-time.Second) }, "init_fragment_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidate_MemoryBackendWithoutLocation(t *testing.T) {
	cfg := validTestConfig()
	cfg.Storage.Backend = BackendMemory
	cfg.TSB.Location = ""
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SessionLogLevel(t *testing.T) {
	cfg := validTestConfig()
	assert.Equal(t, "info", cfg.SessionLogLevel())

	cfg.TSB.LogLevel = "trace"
	assert.Equal(t, "trace", cfg.SessionLogLevel())
}

func TestConfig_AllBackends(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendBadger, BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			cfg := validTestConfig()
			cfg.Storage.Backend = backend
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
tsb:
  trickplay_fps: "not a number"
  invalid yaml structure
`
	err := os.WriteFile(configPath, []byte(invalidContent), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_InvalidMaxLength(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("tsb:\n  max_length: \"soon\"\n"), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
