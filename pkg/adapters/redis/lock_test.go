package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/testflow/pkg/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "run:flow-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:run:flow-1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:run:flow-1"))
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := newClient(t)
	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(ctxTimeout, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	defer unlock2(ctx)
	assert.True(t, mr.Exists("test:lock:shared"))
}

func TestRedisLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock2, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlock1(ctx))
	assert.True(t, mr.Exists("test:lock:k"), "an expired holder must not release the new lock")
	require.NoError(t, unlock2(ctx))
}
