// Package history implements snapshot-based undo/redo over a graph store.
package history

import (
	"log/slog"
	"sync"

	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/domain"
)

// DefaultLimit bounds the number of retained snapshots.
const DefaultLimit = 100

// Target is the graph the manager snapshots and restores.
type Target interface {
	Snapshot() domain.FlowGraph
	Restore(nodes []domain.Node, edges []domain.Edge) *domain.GraphDiff
}

type snapshot struct {
	nodes []domain.Node
	edges []domain.Edge
}

// Manager holds full {nodes, edges} snapshots and a cursor.
type Manager struct {
	mu      sync.Mutex
	target  Target
	entries []snapshot
	cursor  int
	limit   int

	// gesture depth; pushes are suppressed while > 0
	batch   int
	pending bool

	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLimit sets the maximum number of snapshots kept. Values below 2 are ignored.
func WithLimit(n int) Option {
	return func(m *Manager) {
		if n >= 2 {
			m.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a manager whose initial snapshot is the target's current graph.
func New(target Target, opts ...Option) *Manager {
	m := &Manager{
		target: target,
		limit:  DefaultLimit,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.entries = []snapshot{capture(target)}
	return m
}

func capture(t Target) snapshot {
	g := t.Snapshot()
	return snapshot{nodes: g.Nodes, edges: g.Edges}
}

// Reset discards all history and takes a new initial snapshot.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = []snapshot{capture(m.target)}
	m.cursor = 0
	m.batch = 0
	m.pending = false
}

// Push records the target's current graph. Any redo entries beyond the
// cursor are discarded. Inside a gesture the push is deferred to EndGesture.
func (m *Manager) Push() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch > 0 {
		m.pending = true
		return
	}
	m.pushLocked()
}

func (m *Manager) pushLocked() {
	m.entries = append(m.entries[:m.cursor+1], capture(m.target))
	m.cursor++

	if over := len(m.entries) - m.limit; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
		m.cursor -= over
		m.logger.Debug("history limit reached, oldest snapshots discarded", "count", over)
	}
}

// BeginGesture starts a continuous edit (e.g., a drag). Pushes until the
// matching EndGesture coalesce into one snapshot.
func (m *Manager) BeginGesture() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch++
}

// EndGesture closes a gesture. When the outermost gesture ends, a single
// snapshot is taken if anything was pushed during it or if commit is true.
func (m *Manager) EndGesture(commit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch == 0 {
		return
	}
	m.batch--
	if commit {
		m.pending = true
	}
	if m.batch == 0 && m.pending {
		m.pending = false
		m.pushLocked()
	}
}

// Undo restores the previous snapshot. It is a no-op at the first snapshot.
func (m *Manager) Undo() (*domain.GraphDiff, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == 0 {
		return nil, false
	}
	m.cursor--
	return m.restoreLocked(), true
}

// Redo reapplies the next snapshot. It is a no-op at the last snapshot.
func (m *Manager) Redo() (*domain.GraphDiff, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor >= len(m.entries)-1 {
		return nil, false
	}
	m.cursor++
	return m.restoreLocked(), true
}

func (m *Manager) restoreLocked() *domain.GraphDiff {
	s := m.entries[m.cursor]
	// The store clones on restore, so entries stay immutable.
	return m.target.Restore(s.nodes, s.edges)
}

// CanUndo reports whether Undo would change the graph.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor > 0
}

// CanRedo reports whether Redo would change the graph.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor < len(m.entries)-1
}

// Len returns the number of snapshots held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Cursor returns the index of the current snapshot.
func (m *Manager) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}
