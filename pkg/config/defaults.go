package config

import (
	"strings"
	"time"

	"github.com/pixload/pixload/internal/bytesize"
)

// ApplyDefaults fills any unspecified configuration fields with sensible
// defaults. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyEngineDefaults(&cfg.Engine)
	applyMemoryCacheDefaults(&cfg.MemoryCache)
	applyDiscCacheDefaults(&cfg.DiscCache)
	applyNetworkDefaults(&cfg.Network)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = 3
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}
	if cfg.Scale == "" {
		cfg.Scale = "sample-fit"
	}
	if cfg.CacheInMemory == nil {
		cfg.CacheInMemory = boolPtr(true)
	}
	if cfg.CacheOnDisc == nil {
		cfg.CacheOnDisc = boolPtr(true)
	}
	if cfg.MaxPixels == 0 {
		cfg.MaxPixels = 64 << 20
	}
}

func applyMemoryCacheDefaults(cfg *MemoryCacheConfig) {
	if cfg.Enabled == nil {
		cfg.Enabled = boolPtr(true)
	}
	if cfg.Size == 0 {
		cfg.Size = 64 * bytesize.MiB
	}
}

func applyDiscCacheDefaults(cfg *DiscCacheConfig) {
	if cfg.Enabled == nil {
		cfg.Enabled = boolPtr(true)
	}
	if cfg.Path == "" {
		cfg.Path = "/var/cache/pixload"
	}
	if cfg.Quality == 0 {
		cfg.Quality = 85
	}
}

func applyNetworkDefaults(cfg *NetworkConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "normal"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.DegradedChunkSize == 0 {
		cfg.DegradedChunkSize = 4 * bytesize.KiB
	}
	if cfg.DegradedPause == 0 {
		cfg.DegradedPause = 100 * time.Millisecond
	}
}

func boolPtr(b bool) *bool { return &b }

// GetDefaultConfig returns a Config with all defaults applied, used to
// generate sample configuration files and by tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
