package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/adapters/file"
	httpAdapter "github.com/aretw0/testflow/pkg/adapters/http"
	loamAdapter "github.com/aretw0/testflow/pkg/adapters/loam"
	redisAdapter "github.com/aretw0/testflow/pkg/adapters/redis"
	"github.com/aretw0/testflow/pkg/adapters/socket"
	"github.com/aretw0/testflow/pkg/persistence/middleware"
	"github.com/aretw0/testflow/pkg/ports"
)

// SecretKeyEnv overrides Secrets.Key.
const SecretKeyEnv = "TESTFLOW_SECRET_KEY"

var (
	// ErrNotRepository is returned when a command needs whole-flow management
	// from a backend that only supports single flow access.
	ErrNotRepository = errors.New("store does not support listing or deleting flows")

	// ErrRunFailed signals a completed run with failed nodes.
	ErrRunFailed = errors.New("run finished with failures")
)

// Backend is the set of collaborators built from a Config.
type Backend struct {
	Store        ports.FlowStore
	Orchestrator ports.Orchestrator
	Locker       ports.DistributedLocker
	Logger       *slog.Logger
	// Environments names the environment ids runs are started with.
	Environments map[string]string

	closers []func() error
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg LogConfig) *slog.Logger {
	format := logging.FormatText
	if strings.EqualFold(cfg.Format, "json") {
		format = logging.FormatJSON
	}
	return logging.NewWithWriter(os.Stderr, logging.ParseLevel(cfg.Level), format)
}

// Open builds the backend described by cfg.
func Open(cfg *Config, logger *slog.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{Logger: logger, Environments: cfg.Environments}

	switch cfg.Store.Type {
	case StoreFile:
		format := file.FormatJSON
		if cfg.Store.Format == "yaml" {
			format = file.FormatYAML
		}
		b.Store = file.New(cfg.Store.Dir, file.WithFormat(format))

	case StoreLoam:
		store, err := loamAdapter.Open(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("open loam store: %w", err)
		}
		b.Store = store

	case StoreRedis:
		store := redisAdapter.New(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB,
			redisAdapter.WithPrefix(cfg.Store.RedisPrefix),
			redisAdapter.WithMaxReports(cfg.Store.MaxReports),
		)
		b.Store = store
		b.Locker = redisAdapter.NewLocker(store.Client(), cfg.Store.RedisPrefix)
		b.closers = append(b.closers, store.Close)

	case StoreHTTP:
		b.Store = httpAdapter.NewClient(cfg.Store.URL, clientOptions(cfg.Store.Token, logger)...)
	}

	raw := b.Store
	if repo, ok := b.Store.(ports.FlowRepository); ok {
		wrapped, err := withSecrets(repo, cfg.Secrets)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Store = wrapped
	}

	if url := cfg.Orchestrator.URL; url != "" {
		b.Orchestrator = newOrchestrator(url, cfg.Orchestrator.Token, logger)
	} else if client, ok := raw.(ports.Orchestrator); ok {
		b.Orchestrator = client
	}
	return b, nil
}

// Repository returns the store when it supports whole-flow management.
func (b *Backend) Repository() (ports.FlowRepository, error) {
	repo, ok := b.Store.(ports.FlowRepository)
	if !ok {
		return nil, ErrNotRepository
	}
	return repo, nil
}

// EditorOptions returns the options wiring the backend into an Editor.
func (b *Backend) EditorOptions() []testflow.Option {
	opts := []testflow.Option{testflow.WithLogger(b.Logger)}
	if b.Orchestrator != nil {
		opts = append(opts, testflow.WithOrchestrator(b.Orchestrator))
	}
	if b.Locker != nil {
		opts = append(opts, testflow.WithLocker(b.Locker))
	}
	if len(b.Environments) > 0 {
		names := b.Environments
		opts = append(opts, testflow.WithEnvironmentNamer(func(id string) string { return names[id] }))
	}
	return opts
}

// Close releases backend connections.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func clientOptions(token string, logger *slog.Logger) []httpAdapter.ClientOption {
	opts := []httpAdapter.ClientOption{httpAdapter.WithClientLogger(logger)}
	if token != "" {
		opts = append(opts, httpAdapter.WithHeader("Authorization", "Bearer "+token))
	}
	return opts
}

func newOrchestrator(url, token string, logger *slog.Logger) ports.Orchestrator {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		o := socket.NewOrchestrator(url)
		if token != "" {
			o.Header.Set("Authorization", "Bearer "+token)
		}
		return o
	}
	return httpAdapter.NewClient(url, clientOptions(token, logger)...)
}

func withSecrets(repo ports.FlowRepository, cfg SecretsConfig) (ports.FlowRepository, error) {
	var mws []middleware.Middleware

	key := cfg.Key
	if env := os.Getenv(SecretKeyEnv); env != "" {
		key = env
	}
	if key != "" {
		active, err := decodeKey(key)
		if err != nil {
			return nil, fmt.Errorf("secrets key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range cfg.FallbackKeys {
			fallback, err := decodeKey(k)
			if err != nil {
				return nil, fmt.Errorf("secrets fallback key %d: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, fallback)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	}
	if len(cfg.Mask) > 0 {
		mws = append(mws, middleware.NewMaskingMiddleware(cfg.Mask))
	}
	return middleware.Chain(repo, mws...), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(key))
	}
	return key, nil
}
