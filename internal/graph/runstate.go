package graph

import "github.com/aretw0/testflow/pkg/domain"

// ResetRunState clears the run state of every node and edge.
func (s *Store) ResetRunState() {
	s.mu.Lock()
	clear(s.nodeRuns)
	clear(s.edgeRuns)
	s.commit(Change{Kind: ChangeRunReset})
}

// UpdateNodeRun applies fn to the run state of a node. Unknown nodes and
// group nodes are ignored and report false.
func (s *Store) UpdateNodeRun(id string, fn func(*domain.NodeRunState)) bool {
	s.mu.Lock()

	i := s.nodeIndexLocked(id)
	if i < 0 || !s.nodes[i].Type.Executable() {
		s.commit()
		return false
	}
	state := s.nodeRuns[id]
	fn(&state)
	s.nodeRuns[id] = state

	out := state
	s.commit(Change{Kind: ChangeNodeRun, NodeID: id, NodeRun: &out})
	return true
}

// UpdateEdgeRun applies fn to the run state of an edge. Unknown edges report false.
func (s *Store) UpdateEdgeRun(id string, fn func(*domain.EdgeRunState)) bool {
	s.mu.Lock()

	if s.edgeIndexLocked(id) < 0 {
		s.commit()
		return false
	}
	state := s.edgeRuns[id]
	fn(&state)
	s.edgeRuns[id] = state

	out := state
	s.commit(Change{Kind: ChangeEdgeRun, EdgeID: id, EdgeRun: &out})
	return true
}

// NodeRun returns the run state of a node. The zero value means not run.
func (s *Store) NodeRun(id string) domain.NodeRunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeRuns[id]
}

// EdgeRun returns the run state of an edge.
func (s *Store) EdgeRun(id string) domain.EdgeRunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgeRuns[id]
}

// RunStates returns copies of all recorded node and edge run states.
func (s *Store) RunStates() (map[string]domain.NodeRunState, map[string]domain.EdgeRunState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make(map[string]domain.NodeRunState, len(s.nodeRuns))
	for id, st := range s.nodeRuns {
		nodes[id] = st
	}
	edges := make(map[string]domain.EdgeRunState, len(s.edgeRuns))
	for id, st := range s.edgeRuns {
		edges[id] = st
	}
	return nodes, edges
}
