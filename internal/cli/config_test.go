package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  type: redis
  redis_addr: cache:6379
  max_reports: "20"
orchestrator:
  url: ws://runner:9000/ws
log:
  level: debug
secrets:
  mask: ["(?i)password"]
environments:
  env-1: Staging
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.Store.Type)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 20, cfg.Store.MaxReports)
	assert.Equal(t, "testflow:", cfg.Store.RedisPrefix, "unset keys keep defaults")
	assert.Equal(t, "ws://runner:9000/ws", cfg.Orchestrator.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"(?i)password"}, cfg.Secrets.Mask)
	assert.Equal(t, map[string]string{"env-1": "Staging"}, cfg.Environments)
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("store:\n  kind: file\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_MergeFlagsWin(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Merge(map[string]any{
		"store": map[string]any{"type": "loam", "dir": "flows"},
	}))
	assert.Equal(t, StoreLoam, cfg.Store.Type)
	assert.Equal(t, "flows", cfg.Store.Dir)
	assert.Equal(t, "json", cfg.Store.Format)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown store", func(c *Config) { c.Store.Type = "s3" }, true},
		{"file without dir", func(c *Config) { c.Store.Dir = "" }, true},
		{"http without url", func(c *Config) { c.Store.Type = StoreHTTP }, true},
		{"http with url", func(c *Config) { c.Store.Type = StoreHTTP; c.Store.URL = "http://api" }, false},
		{"bad format", func(c *Config) { c.Store.Format = "toml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
