// Package config loads and validates the pixload configuration from file,
// environment and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pixload/pixload/internal/bytesize"
)

// Config is the pixload service configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (PIXLOAD_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server configures the HTTP image service.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Engine tunes the load pipeline.
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`

	// MemoryCache configures the in-process decoded-image cache.
	MemoryCache MemoryCacheConfig `mapstructure:"memory_cache" yaml:"memory_cache"`

	// DiscCache configures the persistent byte cache.
	DiscCache DiscCacheConfig `mapstructure:"disc_cache" yaml:"disc_cache"`

	// Network configures remote fetching.
	Network NetworkConfig `mapstructure:"network" yaml:"network"`

	// Metrics enables the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the HTTP image service.
type ServerConfig struct {
	// Host is the listen address. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP listen port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RequestTimeout bounds a single image request end to end.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// EngineConfig tunes the load pipeline.
type EngineConfig struct {
	// Workers is the load worker pool size.
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`

	// QueueSize bounds pending loads; submissions beyond it fail fast.
	QueueSize int `mapstructure:"queue_size" validate:"omitempty,min=1" yaml:"queue_size"`

	// Scale is the default downscale policy: none, sample-fit or exact-fit.
	Scale string `mapstructure:"scale" validate:"omitempty,oneof=none sample-fit exact-fit" yaml:"scale"`

	// DelayBeforeLoading is waited out before each load starts.
	DelayBeforeLoading time.Duration `mapstructure:"delay_before_loading" yaml:"delay_before_loading"`

	// CacheInMemory and CacheOnDisc are the default caching flags per
	// request. Unset means enabled.
	CacheInMemory *bool `mapstructure:"cache_in_memory" yaml:"cache_in_memory"`
	CacheOnDisc   *bool `mapstructure:"cache_on_disc" yaml:"cache_on_disc"`

	// MaxPixels refuses decoding images above this pixel count.
	MaxPixels int64 `mapstructure:"max_pixels" validate:"omitempty,min=1" yaml:"max_pixels"`
}

// MemoryCacheConfig configures the in-process decoded-image cache.
type MemoryCacheConfig struct {
	// Enabled turns the memory tier on. Unset means enabled.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Size bounds the decoded bytes held in memory.
	// Supports human-readable formats: "64Mi", "100MB".
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size,omitempty"`
}

// DiscCacheConfig configures the persistent byte cache.
type DiscCacheConfig struct {
	// Enabled turns the disc tier on. Unset means enabled.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the primary cache directory.
	Path string `mapstructure:"path" yaml:"path"`

	// ReservePath takes over when Path is unwritable. Optional.
	ReservePath string `mapstructure:"reserve_path" yaml:"reserve_path,omitempty"`

	// MaxWidth and MaxHeight bound the sized re-encode written to disc.
	// Zero disables recompression; raw bytes are stored instead.
	MaxWidth  int `mapstructure:"max_width" validate:"omitempty,min=1" yaml:"max_width,omitempty"`
	MaxHeight int `mapstructure:"max_height" validate:"omitempty,min=1" yaml:"max_height,omitempty"`

	// Quality is the JPEG quality for recompressed entries.
	Quality int `mapstructure:"quality" validate:"omitempty,min=1,max=100" yaml:"quality,omitempty"`
}

// NetworkConfig configures remote fetching.
type NetworkConfig struct {
	// Mode is the startup network mode: normal, denied or degraded.
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=normal denied degraded" yaml:"mode"`

	// HTTPTimeout bounds a single HTTP fetch.
	HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`

	// UserAgent overrides the HTTP User-Agent header.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent,omitempty"`

	// DegradedChunkSize and DegradedPause shape throttling in degraded
	// mode.
	DegradedChunkSize bytesize.ByteSize `mapstructure:"degraded_chunk_size" yaml:"degraded_chunk_size,omitempty"`
	DegradedPause     time.Duration     `mapstructure:"degraded_pause" yaml:"degraded_pause,omitempty"`

	// S3 configures the s3:// fetch strategy.
	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures the S3 fetch strategy. Credentials left empty fall
// back to the default AWS credential chain.
type S3Config struct {
	// Enabled wires the s3:// scheme.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	Region          string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// MetricsConfig enables Prometheus collection and the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location; a missing file is fine and
// yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration and returns a user-friendly error when the
// requested file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Initialize one first:\n"+
				"  pixload init\n\n"+
				"Or specify a custom config file:\n"+
				"  pixload <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Create it with:\n"+
			"  pixload init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path in YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the network section may carry credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the PIXLOAD_ prefix with underscores.
	// Example: PIXLOAD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("PIXLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines the decode hooks for custom config types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// config files can say "64Mi" or "100MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64.
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration ("30s", "5m").
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/pixload, falling back to
// ~/.config/pixload or the current directory.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pixload")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "pixload")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks for a config file at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory (used by the init
// command).
func GetConfigDir() string {
	return getConfigDir()
}
