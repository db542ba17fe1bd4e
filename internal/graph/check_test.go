package graph

import (
	"testing"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	valid := domain.FlowGraph{
		Nodes: []domain.Node{
			{ID: "G", Type: domain.NodeTypeGroup},
			{ID: "A", Type: domain.NodeTypeHTTPRequest, ParentID: "G"},
			{ID: "B", Type: domain.NodeTypeAssertion},
			{ID: "C", Type: domain.NodeTypeScript},
		},
		Edges: []domain.Edge{
			{ID: "ab", SourceNodeID: "A", TargetNodeID: "B"},
			{ID: "bc", SourceNodeID: "B", TargetNodeID: "C", SourceHandle: domain.HandleTrue},
		},
	}
	assert.NoError(t, Check(valid))
	assert.NoError(t, Check(domain.FlowGraph{}))

	tests := []struct {
		name   string
		mutate func(g *domain.FlowGraph)
		want   error
	}{
		{"Unknown Type", func(g *domain.FlowGraph) { g.Nodes[2].Type = "teleport" }, domain.ErrUnknownNodeType},
		{"Duplicate Node", func(g *domain.FlowGraph) { g.Nodes[3].ID = "B" }, domain.ErrDuplicateID},
		{"Parent Not Group", func(g *domain.FlowGraph) { g.Nodes[1].ParentID = "C" }, domain.ErrInvalidParent},
		{"Missing Endpoint", func(g *domain.FlowGraph) { g.Edges[0].TargetNodeID = "X" }, domain.ErrMissingEndpoint},
		{"Invalid Handle", func(g *domain.FlowGraph) { g.Edges[1].SourceHandle = domain.HandleLoop }, domain.ErrInvalidHandle},
		{"Occupied Handle", func(g *domain.FlowGraph) {
			g.Edges = append(g.Edges, domain.Edge{ID: "ba", SourceNodeID: "B", TargetNodeID: "A", SourceHandle: domain.HandleTrue})
		}, domain.ErrHandleOccupied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := valid.Clone()
			tt.mutate(&g)
			err := Check(g)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsGraphError(err))
		})
	}
}
