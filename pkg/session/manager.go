package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/testflow"
	graphstore "github.com/aretw0/testflow/internal/graph"
	"github.com/aretw0/testflow/internal/history"
	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a flow.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates write access to flows.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.FlowStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	timelinesMu  sync.Mutex
	timelines    map[string]*timeline
	historyLimit int

	locker     ports.DistributedLocker
	ttl        time.Duration
	editorOpts []testflow.Option
	logger     *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithHistoryLimit bounds the undo history kept per flow.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		m.historyLimit = n
	}
}

// WithEditorOptions appends options for editors opened by Edit.
func WithEditorOptions(opts ...testflow.Option) Option {
	return func(m *Manager) {
		m.editorOpts = append(m.editorOpts, opts...)
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager over store.
func NewManager(store ports.FlowStore, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		locks:        make(map[string]*lockEntry),
		timelines:    make(map[string]*timeline),
		historyLimit: history.DefaultLimit,
		ttl:          DefaultLockTTL,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(flowID) after unlocking.
func (m *Manager) acquire(flowID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[flowID]
	if !exists {
		entry = &lockEntry{}
		m.locks[flowID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(flowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[flowID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, flowID)
	}
}

// WithLock executes fn while holding the edit lock of the flow.
func (m *Manager) WithLock(ctx context.Context, flowID string, fn func(context.Context) error) error {
	entry := m.acquire(flowID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(flowID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "edit:"+flowID, m.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"flow_id", flowID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// SaveGraph replaces the structural graph of a flow under its lock and
// returns the diff against the stored graph. A graph the editing rules reject
// is refused before anything is written.
func (m *Manager) SaveGraph(ctx context.Context, flowID string, graph domain.FlowGraph) (*domain.GraphDiff, error) {
	if err := graphstore.Check(graph); err != nil {
		return nil, fmt.Errorf("save flow %s: %w", flowID, err)
	}
	var diff *domain.GraphDiff
	err := m.WithLock(ctx, flowID, func(ctx context.Context) error {
		current, err := m.store.LoadFlow(ctx, flowID)
		if err != nil {
			return err
		}
		if err := m.store.SaveFlow(ctx, flowID, graph); err != nil {
			return err
		}
		diff = domain.DiffGraphs(current.FlowGraph, graph)
		if diff != nil {
			m.record(flowID, current.FlowGraph, graph)
		}
		return nil
	})
	return diff, err
}

// Edit opens an editor on the flow under its lock, applies fn and flushes
// the result. Nothing is saved when fn fails. Both Edit and SaveGraph append
// to the flow's undo history.
func (m *Manager) Edit(ctx context.Context, flowID string, fn func(*testflow.Editor) error) error {
	return m.WithLock(ctx, flowID, func(ctx context.Context) error {
		opts := append([]testflow.Option{
			testflow.WithLogger(m.logger),
			testflow.WithSaveDelay(time.Hour),
		}, m.editorOpts...)
		ed, err := testflow.Open(ctx, m.store, flowID, opts...)
		if err != nil {
			return err
		}
		before := ed.Graph()
		if err := fn(ed); err != nil {
			ed.Discard()
			return err
		}
		after := ed.Graph()
		if err := ed.Close(ctx); err != nil {
			return fmt.Errorf("save flow %s: %w", flowID, err)
		}
		if domain.DiffGraphs(before, after) != nil {
			m.record(flowID, before, after)
		}
		return nil
	})
}
