package graph

import (
	"fmt"

	"github.com/aretw0/testflow/pkg/domain"
)

// Check reports the first record of g that the editing rules reject: unknown
// node types, missing or duplicate ids, parents that are not groups, edges
// with a missing endpoint and branch handles that are invalid or taken.
// Load tolerates such records by dropping them; writers of whole graphs call
// Check to refuse them instead.
func Check(g domain.FlowGraph) error {
	s := New()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range g.Nodes {
		if !n.Type.Valid() {
			return fmt.Errorf("node %q: %w: %q", n.ID, domain.ErrUnknownNodeType, n.Type)
		}
		if n.ID == "" || s.nodeIndexLocked(n.ID) >= 0 {
			return fmt.Errorf("node %q: %w", n.ID, domain.ErrDuplicateID)
		}
		s.nodes = append(s.nodes, n)
	}
	for _, n := range s.nodes {
		if n.ParentID != "" && !s.isGroupLocked(n.ParentID, n.ID) {
			return fmt.Errorf("node %q: parent %q: %w", n.ID, n.ParentID, domain.ErrInvalidParent)
		}
	}
	for _, e := range g.Edges {
		if err := s.checkEdgeLocked(e); err != nil {
			return fmt.Errorf("edge %q: %w", e.ID, err)
		}
		s.edges = append(s.edges, e)
	}
	return nil
}
