// Package config provides configuration management for tsb using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultLocation          = "./data/tsb"
	defaultMaxLength         = "30m"
	defaultTrickplayFPS      = 4
	defaultMaxCapacity       = "10GiB"
	defaultMinFreePercentage = 5
	defaultInitFragmentTTL   = "1h"
	defaultCleanupInterval   = "10m"
	maxPercentage            = 100
)

// Storage backends understood by storage.Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	TSB     TSBConfig     `mapstructure:"tsb"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// TSBConfig holds time-shift buffer session configuration.
type TSBConfig struct {
	// Location is the directory under which each session gets its own store.
	Location string `mapstructure:"location"`
	// MaxLength is the longest span of video kept in the buffer before culling.
	MaxLength Duration `mapstructure:"max_length"`
	// TrickplayFPS is the number of frames per second injected during trick play.
	TrickplayFPS     int  `mapstructure:"trickplay_fps"`
	IFrameExtraction bool `mapstructure:"iframe_extraction"`
	ProgressLogging  bool `mapstructure:"progress_logging"`
	// LogLevel overrides logging.level for the session and store loggers.
	LogLevel string `mapstructure:"log_level"`
}

// StorageConfig holds fragment store configuration.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // file, badger, memory
	// MaxCapacity bounds the bytes held by a session store (0 = unlimited).
	// Accepts human-readable values like "512MiB", "10GiB", or raw byte counts.
	MaxCapacity       ByteSize `mapstructure:"max_capacity"`
	MinFreePercentage int      `mapstructure:"min_free_percentage"`
}

// CacheConfig holds the in-memory init fragment cache configuration.
type CacheConfig struct {
	InitFragmentTTL Duration `mapstructure:"init_fragment_ttl"`
	CleanupInterval Duration `mapstructure:"cleanup_interval"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with TSB_ and use underscores for nesting.
// Example: TSB_TSB_MAX_LENGTH=45m.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tsb")
		v.AddConfigPath("$HOME/.tsb")
	}

	v.SetEnvPrefix("TSB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return Decode(v)
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// TSB defaults
	v.SetDefault("tsb.location", defaultLocation)
	v.SetDefault("tsb.max_length", defaultMaxLength)
	v.SetDefault("tsb.trickplay_fps", defaultTrickplayFPS)
	v.SetDefault("tsb.iframe_extraction", false)
	v.SetDefault("tsb.progress_logging", false)
	v.SetDefault("tsb.log_level", "")

	// Storage defaults
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.max_capacity", defaultMaxCapacity)
	v.SetDefault("storage.min_free_percentage", defaultMinFreePercentage)

	// Cache defaults
	v.SetDefault("cache.init_fragment_ttl", defaultInitFragmentTTL)
	v.SetDefault("cache.cleanup_interval", defaultCleanupInterval)
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Logging validation
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// TSB validation
	if c.TSB.Location == "" && c.Storage.Backend != BackendMemory {
		return fmt.Errorf("tsb.location is required")
	}
	if c.TSB.MaxLength <= 0 {
		return fmt.Errorf("tsb.max_length must be positive")
	}
	if c.TSB.TrickplayFPS < 1 {
		return fmt.Errorf("tsb.trickplay_fps must be at least 1")
	}
	if c.TSB.LogLevel != "" && !validLevels[c.TSB.LogLevel] {
		return fmt.Errorf("tsb.log_level must be empty or one of: trace, debug, info, warn, error")
	}

	// Storage validation
	validBackends := map[string]bool{BackendFile: true, BackendBadger: true, BackendMemory: true}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("storage.backend must be one of: file, badger, memory")
	}
	if c.Storage.MaxCapacity < 0 {
		return fmt.Errorf("storage.max_capacity must not be negative")
	}
	if c.Storage.MinFreePercentage < 0 || c.Storage.MinFreePercentage > maxPercentage {
		return fmt.Errorf("storage.min_free_percentage must be between 0 and %d", maxPercentage)
	}

	// Cache validation
	if c.Cache.InitFragmentTTL < 0 {
		return fmt.Errorf("cache.init_fragment_ttl must not be negative")
	}

	return nil
}

// MaxLengthSeconds returns the configured buffer length in seconds.
func (c *TSBConfig) MaxLengthSeconds() float64 {
	return c.MaxLength.Duration().Seconds()
}

// SessionLogLevel returns the level used for session loggers, falling back
// to the global logging level.
func (c *Config) SessionLogLevel() string {
	if c.TSB.LogLevel != "" {
		return c.TSB.LogLevel
	}
	return c.Logging.Level
}
