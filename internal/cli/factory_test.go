package cli

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/adapters/file"
	httpAdapter "github.com/aretw0/testflow/pkg/adapters/http"
	"github.com/aretw0/testflow/pkg/adapters/socket"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FileStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.Store.Format = "yaml"

	b, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)
	defer b.Close()

	repo, err := b.Repository()
	require.NoError(t, err)
	require.NoError(t, repo.CreateFlow(context.Background(), &domain.Flow{ID: "f1", Name: "One"}))

	ids, err := file.New(cfg.Store.Dir, file.WithFormat(file.FormatYAML)).ListFlows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, ids)
	assert.Nil(t, b.Orchestrator)
	assert.Nil(t, b.Locker)
}

func TestOpen_LoamStoreIsNotRepository(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Type = StoreLoam
	cfg.Store.Dir = t.TempDir()

	b, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Repository()
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestOpen_RedisStoreAndLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Store.Type = StoreRedis
	cfg.Store.RedisAddr = mr.Addr()

	b, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)
	defer b.Close()

	require.NotNil(t, b.Locker)
	unlock, err := b.Locker.Lock(context.Background(), "run:f1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("testflow:lock:run:f1"))
	require.NoError(t, unlock(context.Background()))
}

func TestOpen_Orchestrators(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Type = StoreHTTP
	cfg.Store.URL = "http://api.local"

	b, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &httpAdapter.Client{}, b.Orchestrator, "http store doubles as orchestrator")

	cfg.Orchestrator.URL = "ws://runner.local/ws"
	cfg.Orchestrator.Token = "secret"
	b, err = Open(cfg, logging.NewNop())
	require.NoError(t, err)
	require.IsType(t, &socket.Orchestrator{}, b.Orchestrator)
	assert.Equal(t, "Bearer secret", b.Orchestrator.(*socket.Orchestrator).Header.Get("Authorization"))
}

func TestOpen_SecretsKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.Secrets.Key = "not-a-key"
	_, err := Open(cfg, logging.NewNop())
	assert.Error(t, err)

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	cfg.Secrets.Key = key
	b, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)

	repo, err := b.Repository()
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.CreateFlow(ctx, &domain.Flow{ID: "f1", Variables: map[string]string{"token": "abc"}}))

	raw, err := file.New(cfg.Store.Dir).LoadFlow(ctx, "f1")
	require.NoError(t, err)
	assert.NotEqual(t, "abc", raw.Variables["token"], "variables are encrypted at rest")

	flow, err := repo.LoadFlow(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "abc", flow.Variables["token"])
}
