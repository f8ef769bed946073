package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixload/pixload/internal/bytesize"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Engine.Workers)
	require.NotNil(t, cfg.Engine.CacheInMemory)
	assert.True(t, *cfg.Engine.CacheInMemory)
	assert.Equal(t, 64*bytesize.MiB, cfg.MemoryCache.Size)
	assert.Equal(t, "normal", cfg.Network.Mode)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)

	require.NoError(t, Validate(cfg), "default config should validate")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
  format: json
server:
  port: 9000
engine:
  workers: 8
  cache_in_memory: false
memory_cache:
  size: 128Mi
disc_cache:
  path: /tmp/pixload-cache
  max_width: 1024
  max_height: 768
network:
  mode: degraded
  degraded_pause: 250ms
shutdown_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level should be normalized to upper case")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Engine.Workers)
	require.NotNil(t, cfg.Engine.CacheInMemory)
	assert.False(t, *cfg.Engine.CacheInMemory, "cache_in_memory: false should stick, not revert to default")
	assert.Equal(t, 128*bytesize.MiB, cfg.MemoryCache.Size)
	assert.Equal(t, 1024, cfg.DiscCache.MaxWidth)
	assert.Equal(t, 768, cfg.DiscCache.MaxHeight)
	assert.Equal(t, "degraded", cfg.Network.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.Network.DegradedPause)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)

	// Unspecified fields still get defaults.
	assert.Equal(t, 64, cfg.Engine.QueueSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err, "a missing file should fall back to defaults")
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "LOUD" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad scale", func(c *Config) { c.Engine.Scale = "stretch" }},
		{"bad network mode", func(c *Config) { c.Network.Mode = "offline" }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"disc enabled without path", func(c *Config) { c.DiscCache.Path = "" }},
		{"lopsided disc bounds", func(c *Config) { c.DiscCache.MaxWidth = 800 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.Port = 9999
	cfg.DiscCache.Path = "/tmp/px"

	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "saved config may carry credentials")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)
	assert.Equal(t, "/tmp/px", loaded.DiscCache.Path)
}
