package graph

import "github.com/aretw0/testflow/pkg/domain"

// ChangeKind classifies a store notification.
type ChangeKind string

const (
	ChangeNodeAdded   ChangeKind = "node_added"
	ChangeNodeUpdated ChangeKind = "node_updated"
	ChangeNodeRemoved ChangeKind = "node_removed"
	ChangeEdgeAdded   ChangeKind = "edge_added"
	ChangeEdgeUpdated ChangeKind = "edge_updated"
	ChangeEdgeRemoved ChangeKind = "edge_removed"
	ChangeViewport    ChangeKind = "viewport"
	// ChangeReplaced is emitted when the whole graph is swapped (load, undo, redo).
	ChangeReplaced ChangeKind = "replaced"
	ChangeNodeRun  ChangeKind = "node_run"
	ChangeEdgeRun  ChangeKind = "edge_run"
	ChangeRunReset ChangeKind = "run_reset"
)

// Structural reports whether the change affects persisted data.
func (k ChangeKind) Structural() bool {
	switch k {
	case ChangeNodeRun, ChangeEdgeRun, ChangeRunReset:
		return false
	}
	return true
}

// Change is a notification emitted after a store mutation.
type Change struct {
	Kind    ChangeKind           `json:"kind"`
	NodeID  string               `json:"node_id,omitempty"`
	EdgeID  string               `json:"edge_id,omitempty"`
	Node    *domain.Node         `json:"node,omitempty"`
	Edge    *domain.Edge         `json:"edge,omitempty"`
	NodeRun *domain.NodeRunState `json:"node_run,omitempty"`
	EdgeRun *domain.EdgeRunState `json:"edge_run,omitempty"`
	Diff    *domain.GraphDiff    `json:"diff,omitempty"`
}

// Observer receives store changes. Changes are delivered in mutation order
// before the mutating call returns. Observers may read the store but must not
// mutate it or subscribe.
type Observer func(Change)

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.observers, id)
	}
}

// commit queues changes, releases the data lock and delivers everything
// queued so far. It must be called with s.mu held.
func (s *Store) commit(changes ...Change) {
	if len(changes) == 0 {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, changes...)
	s.mu.Unlock()
	s.deliver()
}

// deliver drains the pending queue under notifyMu. Whichever mutator holds
// notifyMu delivers the changes queued by the others, so every change is
// delivered once and in order, and mu is only taken briefly to swap the queue.
func (s *Store) deliver() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, c := range batch {
			for _, fn := range s.observers {
				fn(c)
			}
		}
	}
}
