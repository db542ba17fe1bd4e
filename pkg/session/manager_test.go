package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/internal/graph"
	"github.com/aretw0/testflow/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/testflow/pkg/adapters/redis"
	"github.com/aretw0/testflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *memory.Store {
	return memory.NewStore(&domain.Flow{ID: "flow-1", Name: "One"})
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(newStore())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_ = mgr.WithLock(ctx, fmt.Sprintf("flow-%d", i), func(context.Context) error { return nil })
	}
	assert.Empty(t, mgr.locks, "locks are released once unused")
}

func TestManager_EditsAreSerialized(t *testing.T) {
	store := newStore()
	mgr := NewManager(store, WithEditorOptions(testflow.WithIDGenerator(graph.UUIDGenerator)))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.Edit(ctx, "flow-1", func(ed *testflow.Editor) error {
				_, err := ed.AddNode(domain.NodeTypeDelay, domain.Position{})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	flow, err := store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Len(t, flow.Nodes, 10, "no edit is lost")
}

func TestManager_EditFailureSavesNothing(t *testing.T) {
	store := newStore()
	mgr := NewManager(store)
	ctx := context.Background()
	boom := errors.New("boom")

	err := mgr.Edit(ctx, "flow-1", func(ed *testflow.Editor) error {
		_, _ = ed.AddNode(domain.NodeTypeDelay, domain.Position{})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	flow, err := store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Empty(t, flow.Nodes)

	err = mgr.Edit(ctx, "ghost", func(*testflow.Editor) error { return nil })
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestManager_SaveGraphReturnsDiff(t *testing.T) {
	store := newStore()
	mgr := NewManager(store)

	diff, err := mgr.SaveGraph(context.Background(), "flow-1", domain.FlowGraph{
		Nodes: []domain.Node{{ID: "A", Type: domain.NodeTypeDelay}},
	})
	require.NoError(t, err)
	require.Len(t, diff.AddedNodes, 1)
	assert.Equal(t, "A", diff.AddedNodes[0].ID)
}

func TestManager_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mgr := NewManager(newStore(), WithLocker(redisAdapter.NewLocker(client, "test:")), WithLockTTL(time.Minute))

	err := mgr.WithLock(context.Background(), "flow-1", func(context.Context) error {
		assert.True(t, mr.Exists("test:lock:edit:flow-1"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:edit:flow-1"))
}

func TestManager_SaveGraphRejectsInvalidGraph(t *testing.T) {
	store := newStore()
	mgr := NewManager(store)
	ctx := context.Background()

	_, err := mgr.SaveGraph(ctx, "flow-1", domain.FlowGraph{
		Nodes: []domain.Node{{ID: "A", Type: domain.NodeTypeDelay}},
		Edges: []domain.Edge{{ID: "ax", SourceNodeID: "A", TargetNodeID: "X"}},
	})
	require.ErrorIs(t, err, domain.ErrMissingEndpoint)

	flow, err := store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Empty(t, flow.Nodes, "nothing is written")
	assert.False(t, mgr.CanUndo("flow-1"))
}
