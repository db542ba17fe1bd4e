package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the project configuration looked up in the working directory.
const ConfigFile = "testflow.yaml"

// Store types accepted by StoreConfig.Type.
const (
	StoreFile  = "file"
	StoreLoam  = "loam"
	StoreRedis = "redis"
	StoreHTTP  = "http"
)

// Config is the CLI configuration: defaults, then testflow.yaml, then flags.
// Environments maps environment ids to the names recorded in run reports.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Secrets      SecretsConfig      `yaml:"secrets" mapstructure:"secrets"`
	Environments map[string]string  `yaml:"environments" mapstructure:"environments"`
}

// StoreConfig selects and configures the flow storage backend.
type StoreConfig struct {
	Type   string `yaml:"type" mapstructure:"type"`
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`

	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" mapstructure:"redis_prefix"`
	MaxReports    int    `yaml:"max_reports" mapstructure:"max_reports"`

	URL   string `yaml:"url" mapstructure:"url"`
	Token string `yaml:"token" mapstructure:"token"`
}

// OrchestratorConfig points at the service that executes runs.
// An http(s) URL uses the SSE endpoint, a ws(s) URL the WebSocket relay.
type OrchestratorConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Token string `yaml:"token" mapstructure:"token"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures `testflow serve`.
type ServerConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// SecretsConfig enables the store middlewares.
type SecretsConfig struct {
	// Key is a base64 encoded 32 byte AES key. Empty disables encryption.
	Key          string   `yaml:"key" mapstructure:"key"`
	FallbackKeys []string `yaml:"fallback_keys" mapstructure:"fallback_keys"`
	Mask         []string `yaml:"mask" mapstructure:"mask"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Type:        StoreFile,
			Dir:         ".testflow",
			Format:      "json",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "testflow:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Merge(raw); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Merge overlays values onto the config. Keys absent from values keep their
// current setting; unknown keys are rejected.
func (c *Config) Merge(values map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

// Validate reports configuration values no backend can use.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreFile, StoreLoam:
		if c.Store.Dir == "" {
			return fmt.Errorf("store %q needs a directory", c.Store.Type)
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store \"redis\" needs redis_addr")
		}
	case StoreHTTP:
		if c.Store.URL == "" {
			return errors.New("store \"http\" needs a url")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	switch c.Store.Format {
	case "", "json", "yaml":
	default:
		return fmt.Errorf("unknown file format %q", c.Store.Format)
	}
	return nil
}
