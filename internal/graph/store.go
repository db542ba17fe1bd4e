package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/domain"
)

// DuplicateOffset is the position delta applied to duplicated nodes.
var DuplicateOffset = domain.Position{X: 50, Y: 50}

// Store is the single source of truth for the nodes and edges of one open flow.
// Structural records and run state are kept in separate collections joined by id.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	nodes    []domain.Node
	edges    []domain.Edge
	viewport domain.Viewport

	nodeRuns map[string]domain.NodeRunState
	edgeRuns map[string]domain.EdgeRunState

	newID  IDGenerator
	logger *slog.Logger

	// pending holds changes not yet delivered, in mutation order. Guarded by mu.
	pending []Change

	// notifyMu serialises delivery. It is never acquired while mu is held.
	notifyMu     sync.Mutex
	observers    map[int]Observer
	nextObserver int
}

// Option configures the Store.
type Option func(*Store)

// WithIDGenerator sets the generator used for nodes and edges created without an id.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		nodeRuns:  make(map[string]domain.NodeRunState),
		edgeRuns:  make(map[string]domain.EdgeRunState),
		newID:     UUIDGenerator,
		logger:    logging.NewNop(),
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a fresh identifier from the store's generator.
func (s *Store) NewID() string {
	return s.newID()
}

// Load replaces the whole graph with a stored one and clears run state.
// Stored data is not trusted: edges with missing endpoints, duplicate ids,
// edges on an occupied branch handle and invalid parent references are dropped
// with a warning. It returns the number of dropped records.
func (s *Store) Load(g domain.FlowGraph) int {
	s.mu.Lock()
	before := s.snapshotLocked()

	s.nodes = nil
	s.edges = nil
	s.viewport = g.Viewport
	clear(s.nodeRuns)
	clear(s.edgeRuns)

	dropped := 0
	for _, n := range g.Nodes {
		if n.ID == "" || s.nodeIndexLocked(n.ID) >= 0 {
			s.logger.Warn("dropping node with missing or duplicate id", "node_id", n.ID)
			dropped++
			continue
		}
		s.nodes = append(s.nodes, n.Clone())
	}
	for i := range s.nodes {
		if p := s.nodes[i].ParentID; p != "" && !s.isGroupLocked(p, s.nodes[i].ID) {
			s.logger.Warn("clearing invalid parent reference", "node_id", s.nodes[i].ID, "parent_id", p)
			s.nodes[i].ParentID = ""
			dropped++
		}
	}
	for _, e := range g.Edges {
		if err := s.checkEdgeLocked(e); err != nil {
			s.logger.Warn("dropping invalid edge", "edge_id", e.ID, "err", err)
			dropped++
			continue
		}
		s.edges = append(s.edges, e)
	}

	diff := domain.DiffGraphs(before, s.snapshotLocked())
	s.commit(Change{Kind: ChangeReplaced, Diff: diff}, Change{Kind: ChangeRunReset})
	return dropped
}

// Restore swaps in a structural snapshot (used by undo/redo). Run state of
// nodes and edges that no longer exist is pruned. The viewport is left untouched.
func (s *Store) Restore(nodes []domain.Node, edges []domain.Edge) *domain.GraphDiff {
	s.mu.Lock()
	before := s.snapshotLocked()

	s.nodes = make([]domain.Node, len(nodes))
	for i, n := range nodes {
		s.nodes[i] = n.Clone()
	}
	s.edges = slices.Clone(edges)

	for id := range s.nodeRuns {
		if s.nodeIndexLocked(id) < 0 {
			delete(s.nodeRuns, id)
		}
	}
	for id := range s.edgeRuns {
		if s.edgeIndexLocked(id) < 0 {
			delete(s.edgeRuns, id)
		}
	}

	diff := domain.DiffGraphs(before, s.snapshotLocked())
	if diff == nil {
		s.commit()
		return nil
	}
	s.commit(Change{Kind: ChangeReplaced, Diff: diff})
	return diff
}

// Snapshot returns a deep copy of the structural graph.
// It never contains run state.
func (s *Store) Snapshot() domain.FlowGraph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.FlowGraph {
	g := domain.FlowGraph{Nodes: s.nodes, Edges: s.edges, Viewport: s.viewport}
	return g.Clone()
}

// Nodes returns a copy of the nodes in insertion order.
func (s *Store) Nodes() []domain.Node {
	return s.Snapshot().Nodes
}

// Edges returns a copy of the edges in insertion order.
func (s *Store) Edges() []domain.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.edges)
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (domain.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.nodeIndexLocked(id)
	if i < 0 {
		return domain.Node{}, false
	}
	return s.nodes[i].Clone(), true
}

// Edge returns the edge with the given id.
func (s *Store) Edge(id string) (domain.Edge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.edgeIndexLocked(id)
	if i < 0 {
		return domain.Edge{}, false
	}
	return s.edges[i], true
}

// EdgeOnHandle returns the outgoing edge of source on the given handle.
func (s *Store) EdgeOnHandle(sourceID, handle string) (domain.Edge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.edges {
		if e.SourceNodeID == sourceID && e.SourceHandle == handle {
			return e, true
		}
	}
	return domain.Edge{}, false
}

// Viewport returns the current pan/zoom.
func (s *Store) Viewport() domain.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// SetViewport records a new pan/zoom.
func (s *Store) SetViewport(v domain.Viewport) {
	s.mu.Lock()
	if s.viewport == v {
		s.commit()
		return
	}
	s.viewport = v
	s.commit(Change{Kind: ChangeViewport})
}

// AddNode inserts a node. An empty id is filled from the generator.
func (s *Store) AddNode(n domain.Node) (domain.Node, error) {
	s.mu.Lock()

	if !n.Type.Valid() {
		s.mu.Unlock()
		return domain.Node{}, fmt.Errorf("%w: %q", domain.ErrUnknownNodeType, n.Type)
	}
	if n.ID == "" {
		n.ID = s.newID()
	}
	if s.nodeIndexLocked(n.ID) >= 0 {
		s.mu.Unlock()
		return domain.Node{}, fmt.Errorf("add node %s: %w", n.ID, domain.ErrDuplicateID)
	}
	if n.ParentID != "" && !s.isGroupLocked(n.ParentID, n.ID) {
		s.mu.Unlock()
		return domain.Node{}, fmt.Errorf("add node %s: parent %s: %w", n.ID, n.ParentID, domain.ErrInvalidParent)
	}

	n = n.Clone()
	s.nodes = append(s.nodes, n)
	out := n.Clone()
	s.commit(Change{Kind: ChangeNodeAdded, NodeID: n.ID, Node: &out})
	return n.Clone(), nil
}

// AddEdge inserts an edge. Both endpoints must exist and, for a branching
// source, the handle must be one of the source type's handles and still free.
func (s *Store) AddEdge(e domain.Edge) (domain.Edge, error) {
	s.mu.Lock()

	if e.ID == "" {
		e.ID = s.newID()
	}
	if err := s.checkEdgeLocked(e); err != nil {
		s.mu.Unlock()
		return domain.Edge{}, fmt.Errorf("add edge %s: %w", e.ID, err)
	}

	s.edges = append(s.edges, e)
	out := e
	s.commit(Change{Kind: ChangeEdgeAdded, EdgeID: e.ID, Edge: &out})
	return e, nil
}

func (s *Store) checkEdgeLocked(e domain.Edge) error {
	if e.ID == "" || s.edgeIndexLocked(e.ID) >= 0 {
		return domain.ErrDuplicateID
	}
	si := s.nodeIndexLocked(e.SourceNodeID)
	if si < 0 || s.nodeIndexLocked(e.TargetNodeID) < 0 {
		return domain.ErrMissingEndpoint
	}
	source := s.nodes[si]
	handles := source.Type.Handles()
	if len(handles) == 0 {
		if e.SourceHandle != "" {
			return fmt.Errorf("%w: %s nodes have no %q handle", domain.ErrInvalidHandle, source.Type, e.SourceHandle)
		}
		return nil
	}
	if !slices.Contains(handles, e.SourceHandle) {
		return fmt.Errorf("%w: %q is not one of %v", domain.ErrInvalidHandle, e.SourceHandle, handles)
	}
	for _, existing := range s.edges {
		if existing.SourceNodeID == e.SourceNodeID && existing.SourceHandle == e.SourceHandle {
			return fmt.Errorf("%w: %s on %s is taken by %s", domain.ErrHandleOccupied, e.SourceHandle, e.SourceNodeID, existing.ID)
		}
	}
	return nil
}

// DeleteNode removes the node and every incident edge. Children of a deleted
// group are kept and detached. Unknown ids are a no-op.
func (s *Store) DeleteNode(id string) bool {
	s.mu.Lock()

	i := s.nodeIndexLocked(id)
	if i < 0 {
		s.commit()
		return false
	}
	s.nodes = slices.Delete(s.nodes, i, i+1)
	delete(s.nodeRuns, id)

	var changes []Change
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.SourceNodeID == id || e.TargetNodeID == id {
			delete(s.edgeRuns, e.ID)
			changes = append(changes, Change{Kind: ChangeEdgeRemoved, EdgeID: e.ID})
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept

	for j := range s.nodes {
		if s.nodes[j].ParentID == id {
			s.nodes[j].ParentID = ""
			child := s.nodes[j].Clone()
			changes = append(changes, Change{Kind: ChangeNodeUpdated, NodeID: child.ID, Node: &child})
		}
	}

	changes = append(changes, Change{Kind: ChangeNodeRemoved, NodeID: id})
	s.commit(changes...)
	return true
}

// DeleteEdge removes the edge. Unknown ids are a no-op.
func (s *Store) DeleteEdge(id string) bool {
	s.mu.Lock()

	i := s.edgeIndexLocked(id)
	if i < 0 {
		s.commit()
		return false
	}
	s.edges = slices.Delete(s.edges, i, i+1)
	delete(s.edgeRuns, id)
	s.commit(Change{Kind: ChangeEdgeRemoved, EdgeID: id})
	return true
}

// UpdateNode shallow-merges the patch into the node. Config keys are merged
// one level deep and a nil value removes the key. Unknown ids are a no-op
// and report false.
func (s *Store) UpdateNode(id string, p domain.NodePatch) (bool, error) {
	s.mu.Lock()

	i := s.nodeIndexLocked(id)
	if i < 0 {
		s.commit()
		return false, nil
	}
	if p.ParentID != nil && *p.ParentID != "" && !s.isGroupLocked(*p.ParentID, id) {
		s.mu.Unlock()
		return true, fmt.Errorf("update node %s: parent %s: %w", id, *p.ParentID, domain.ErrInvalidParent)
	}

	n := &s.nodes[i]
	if p.Label != nil {
		n.Label = *p.Label
	}
	if p.Position != nil {
		n.Position = *p.Position
	}
	if p.ParentID != nil {
		n.ParentID = *p.ParentID
	}
	if len(p.Config) > 0 {
		if n.Config == nil {
			n.Config = make(map[string]any, len(p.Config))
		}
		for k, v := range domain.CloneConfig(p.Config) {
			if v == nil {
				delete(n.Config, k)
				continue
			}
			n.Config[k] = v
		}
	}

	out := n.Clone()
	s.commit(Change{Kind: ChangeNodeUpdated, NodeID: id, Node: &out})
	return true, nil
}

// MoveNode sets a node's position. Unknown ids are a no-op.
func (s *Store) MoveNode(id string, pos domain.Position) bool {
	ok, _ := s.UpdateNode(id, domain.NodePatch{Position: &pos})
	return ok
}

// ApplyPositions moves every listed node and returns how many moved.
// Unknown ids and unchanged positions are skipped.
func (s *Store) ApplyPositions(positions map[string]domain.Position) int {
	s.mu.Lock()

	var changes []Change
	for i := range s.nodes {
		pos, ok := positions[s.nodes[i].ID]
		if !ok || s.nodes[i].Position == pos {
			continue
		}
		s.nodes[i].Position = pos
		out := s.nodes[i].Clone()
		changes = append(changes, Change{Kind: ChangeNodeUpdated, NodeID: out.ID, Node: &out})
	}
	s.commit(changes...)
	return len(changes)
}

// UpdateEdge applies the patch to the edge. Endpoints are immutable.
// Unknown ids are a no-op and report false.
func (s *Store) UpdateEdge(id string, p domain.EdgePatch) bool {
	s.mu.Lock()

	i := s.edgeIndexLocked(id)
	if i < 0 {
		s.commit()
		return false
	}
	e := &s.edges[i]
	if p.Label != nil {
		e.Label = *p.Label
	}
	if p.TargetHandle != nil {
		e.TargetHandle = *p.TargetHandle
	}
	out := *e
	s.commit(Change{Kind: ChangeEdgeUpdated, EdgeID: id, Edge: &out})
	return true
}

// DuplicateNode clones a node's type, label and config under a new id, offset
// by DuplicateOffset. Incident edges are not cloned. Unknown ids report false.
func (s *Store) DuplicateNode(id string) (domain.Node, bool) {
	s.mu.Lock()

	i := s.nodeIndexLocked(id)
	if i < 0 {
		s.commit()
		return domain.Node{}, false
	}
	dup := s.nodes[i].Clone()
	dup.ID = s.newID()
	for s.nodeIndexLocked(dup.ID) >= 0 {
		dup.ID = s.newID()
	}
	dup.Label = dup.Label + " (copy)"
	dup.Position.X += DuplicateOffset.X
	dup.Position.Y += DuplicateOffset.Y

	s.nodes = append(s.nodes, dup)
	out := dup.Clone()
	s.commit(Change{Kind: ChangeNodeAdded, NodeID: dup.ID, Node: &out})
	return dup.Clone(), true
}

func (s *Store) nodeIndexLocked(id string) int {
	return slices.IndexFunc(s.nodes, func(n domain.Node) bool { return n.ID == id })
}

func (s *Store) edgeIndexLocked(id string) int {
	return slices.IndexFunc(s.edges, func(e domain.Edge) bool { return e.ID == id })
}

// isGroupLocked reports whether parentID names a group node other than childID.
func (s *Store) isGroupLocked(parentID, childID string) bool {
	if parentID == childID {
		return false
	}
	i := s.nodeIndexLocked(parentID)
	return i >= 0 && s.nodes[i].Type == domain.NodeTypeGroup
}
