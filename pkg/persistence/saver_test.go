package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu    sync.Mutex
	saves []domain.FlowGraph
	fail  error
}

func (r *recordingStore) SaveFlow(ctx context.Context, flowID string, graph domain.FlowGraph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.saves = append(r.saves, graph)
	return nil
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *recordingStore) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func graphWith(n int) func() domain.FlowGraph {
	return func() domain.FlowGraph {
		g := domain.FlowGraph{}
		for i := 0; i < n; i++ {
			g.Nodes = append(g.Nodes, domain.Node{ID: string(rune('a' + i)), Type: domain.NodeTypeScript})
		}
		return g
	}
}

func TestSaver_DebounceCoalesces(t *testing.T) {
	store := &recordingStore{}
	s := NewSaver("f", store, graphWith(2), WithDelay(50*time.Millisecond))

	for i := 0; i < 5; i++ {
		s.MarkDirty()
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, s.Dirty())

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, store.count(), "one save once edits settle")
	assert.False(t, s.Dirty())
}

func TestSaver_DiscardDropsPendingEdits(t *testing.T) {
	store := &recordingStore{}
	s := NewSaver("f", store, graphWith(1), WithDelay(20*time.Millisecond))

	s.MarkDirty()
	s.Discard()
	assert.False(t, s.Dirty())

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, s.Close(context.Background()))
	assert.Zero(t, store.count())
}

func TestSaver_ManualSaveBypassesDebounce(t *testing.T) {
	store := &recordingStore{}
	s := NewSaver("f", store, graphWith(1), WithDelay(time.Hour))

	s.MarkDirty()
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, 1, store.count())
	assert.False(t, s.Dirty())
}

func TestSaver_FailureKeepsLocalState(t *testing.T) {
	store := &recordingStore{}
	store.setFail(errors.New("backend down"))

	var reported error
	var mu sync.Mutex
	s := NewSaver("f", store, graphWith(3),
		WithDelay(10*time.Millisecond),
		WithErrorHandler(func(err error) {
			mu.Lock()
			reported = err
			mu.Unlock()
		}))

	s.MarkDirty()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported != nil
	}, time.Second, 5*time.Millisecond)

	assert.True(t, IsSaveError(reported))
	assert.True(t, s.Dirty(), "failed save leaves the flow dirty")

	err := s.Save(context.Background())
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, "f", saveErr.FlowID)

	// The next mutation retriggers the debounce and succeeds once storage recovers.
	store.setFail(nil)
	s.MarkDirty()
	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, store.saves[0].Nodes, 3)
}

func TestSaver_CloseFlushes(t *testing.T) {
	store := &recordingStore{}
	s := NewSaver("f", store, graphWith(1), WithDelay(time.Hour))

	require.NoError(t, s.Close(context.Background()), "clean close does not save")
	assert.Equal(t, 0, store.count())

	s2 := NewSaver("f", store, graphWith(1), WithDelay(time.Hour))
	s2.MarkDirty()
	require.NoError(t, s2.Close(context.Background()))
	assert.Equal(t, 1, store.count())

	s2.MarkDirty()
	assert.False(t, s2.Dirty(), "closed saver ignores mutations")
}

func TestSaver_PayloadHasNoRunFields(t *testing.T) {
	store := &recordingStore{}
	s := NewSaver("f", store, graphWith(2))
	require.NoError(t, s.Save(context.Background()))

	b, err := json.Marshal(store.saves[0])
	require.NoError(t, err)
	for _, field := range []string{"run_status", "status_code", "elapsed_ms", "assertion_results", "branch_taken", "iterations_completed", "is_active"} {
		assert.NotContains(t, string(b), field)
	}
}
