package domain

import (
	"reflect"
	"sort"
)

// GraphDiff represents the changes between two flow graphs.
// It is designed to be serialized to JSON for partial updates on the client.
type GraphDiff struct {
	AddedNodes   []Node   `json:"added_nodes,omitempty"`
	UpdatedNodes []Node   `json:"updated_nodes,omitempty"`
	RemovedNodes []string `json:"removed_nodes,omitempty"`

	AddedEdges   []Edge   `json:"added_edges,omitempty"`
	UpdatedEdges []Edge   `json:"updated_edges,omitempty"`
	RemovedEdges []string `json:"removed_edges,omitempty"`
}

// DiffGraphs calculates the difference between oldGraph and newGraph.
// Viewport changes are ignored. It returns nil when nothing structural changed.
func DiffGraphs(oldGraph, newGraph FlowGraph) *GraphDiff {
	diff := &GraphDiff{}

	oldNodes := make(map[string]Node, len(oldGraph.Nodes))
	for _, n := range oldGraph.Nodes {
		oldNodes[n.ID] = n
	}
	newNodes := make(map[string]struct{}, len(newGraph.Nodes))
	for _, n := range newGraph.Nodes {
		newNodes[n.ID] = struct{}{}
		prev, exists := oldNodes[n.ID]
		if !exists {
			diff.AddedNodes = append(diff.AddedNodes, n)
		} else if !reflect.DeepEqual(prev, n) {
			diff.UpdatedNodes = append(diff.UpdatedNodes, n)
		}
	}
	for id := range oldNodes {
		if _, exists := newNodes[id]; !exists {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	oldEdges := make(map[string]Edge, len(oldGraph.Edges))
	for _, e := range oldGraph.Edges {
		oldEdges[e.ID] = e
	}
	newEdges := make(map[string]struct{}, len(newGraph.Edges))
	for _, e := range newGraph.Edges {
		newEdges[e.ID] = struct{}{}
		prev, exists := oldEdges[e.ID]
		if !exists {
			diff.AddedEdges = append(diff.AddedEdges, e)
		} else if prev != e {
			diff.UpdatedEdges = append(diff.UpdatedEdges, e)
		}
	}
	for id := range oldEdges {
		if _, exists := newEdges[id]; !exists {
			diff.RemovedEdges = append(diff.RemovedEdges, id)
		}
	}

	// Map iteration order is random; keep removals stable for clients and tests.
	sort.Strings(diff.RemovedNodes)
	sort.Strings(diff.RemovedEdges)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *GraphDiff) IsEmpty() bool {
	return len(d.AddedNodes) == 0 &&
		len(d.UpdatedNodes) == 0 &&
		len(d.RemovedNodes) == 0 &&
		len(d.AddedEdges) == 0 &&
		len(d.UpdatedEdges) == 0 &&
		len(d.RemovedEdges) == 0
}
