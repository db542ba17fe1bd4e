package validator

import (
	"strings"
	"testing"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_CleanFlow(t *testing.T) {
	g := domain.FlowGraph{
		Nodes: []domain.Node{
			{ID: "req", Type: domain.NodeTypeHTTPRequest, Config: map[string]any{"request_id": "r1"}},
			{ID: "cond", Type: domain.NodeTypeCondition, Config: map[string]any{"expression": "status_code == 200"}},
			{ID: "wait", Type: domain.NodeTypeDelay},
			{ID: "g", Type: domain.NodeTypeGroup},
			{ID: "vars", Type: domain.NodeTypeSetVariable, ParentID: "g",
				Config: map[string]any{"assignments": []any{map[string]any{"key": "token", "value": "x"}}}},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "req", TargetNodeID: "cond"},
			{ID: "e2", SourceNodeID: "cond", TargetNodeID: "wait", SourceHandle: domain.HandleTrue},
			{ID: "e3", SourceNodeID: "cond", TargetNodeID: "vars", SourceHandle: domain.HandleFalse},
		},
	}

	issues := Validate(g)
	assert.Empty(t, issues)
	assert.NoError(t, Err(issues))
}

func TestValidate_Problems(t *testing.T) {
	g := domain.FlowGraph{
		Nodes: []domain.Node{
			{ID: "a", Type: domain.NodeTypeScript, Label: "Alpha"},
			{ID: "b", Type: domain.NodeTypeScript, Label: "Beta"},
			{ID: "loop", Type: domain.NodeTypeLoop, Config: map[string]any{"mode": "count", "count": 0}},
			{ID: "cond", Type: domain.NodeTypeCondition},
			{ID: "orphan", Type: domain.NodeTypeDelay, ParentID: "a"},
			{ID: "chk", Type: domain.NodeTypeAssertion, Config: map[string]any{"assertions": []any{}}},
		},
		Edges: []domain.Edge{
			{ID: "ab", SourceNodeID: "a", TargetNodeID: "b"},
			{ID: "ba", SourceNodeID: "b", TargetNodeID: "a"},
			{ID: "dangling", SourceNodeID: "a", TargetNodeID: "ghost"},
			{ID: "badhandle", SourceNodeID: "loop", TargetNodeID: "a", SourceHandle: domain.HandleTrue},
		},
	}

	issues := Validate(g)
	require.True(t, HasErrors(issues))

	var text []string
	for _, i := range issues {
		text = append(text, i.String())
	}
	joined := strings.Join(text, "\n")
	assert.Contains(t, joined, "cycle detected involving nodes: Alpha, Beta")
	assert.Contains(t, joined, "edge dangling: endpoint does not exist")
	assert.Contains(t, joined, `handle "source-true" is not valid for loop nodes`)
	assert.Contains(t, joined, "loop count must be at least 1")
	assert.Contains(t, joined, "node cond: expression is empty")
	assert.Contains(t, joined, `parent "a" is not a group node`)
	assert.Contains(t, joined, "[warning] node chk: assertion node has no checks")

	assert.Equal(t, SeverityWarning, issues[len(issues)-1].Severity, "errors sort first")
	assert.ErrorContains(t, Err(issues), "errors:")
}

func TestValidate_ExpressionLint(t *testing.T) {
	g := domain.FlowGraph{Nodes: []domain.Node{
		{ID: "c", Type: domain.NodeTypeCondition, Config: map[string]any{"expression": "status_code == (200"}},
	}}

	issues := Validate(g)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
	assert.False(t, HasErrors(issues))
}
