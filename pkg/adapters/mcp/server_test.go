package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/internal/graph"
	"github.com/aretw0/testflow/pkg/adapters/memory"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFlow() *domain.Flow {
	return &domain.Flow{
		ID:   "flow-1",
		Name: "Login",
		FlowGraph: domain.FlowGraph{
			Nodes: []domain.Node{
				{ID: "A", Type: domain.NodeTypeHTTPRequest, Label: "Login"},
				{ID: "B", Type: domain.NodeTypeAssertion, Label: "Check"},
			},
			Edges: []domain.Edge{{ID: "ab", SourceNodeID: "A", TargetNodeID: "B"}},
		},
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func newTestServer(opts ...Option) (*Server, *memory.Store) {
	store := memory.NewStore(sampleFlow())
	opts = append(opts, WithEditorOptions(testflow.WithIDGenerator(graph.CounterGenerator("n"))))
	return NewServer(store, opts...), store
}

func TestListAndGetFlow(t *testing.T) {
	s, _ := newTestServer()
	ctx := context.Background()

	res, err := s.handleListFlows(ctx, callRequest("list_flows", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `["flow-1"]`, resultText(t, res))

	res, err = s.handleGetFlow(ctx, callRequest("get_flow", map[string]any{"flow_id": "flow-1"}))
	require.NoError(t, err)
	var flow domain.Flow
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &flow))
	assert.Equal(t, "Login", flow.Name)
	assert.Len(t, flow.Nodes, 2)

	res, err = s.handleGetFlow(ctx, callRequest("get_flow", map[string]any{"flow_id": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRenderFlow(t *testing.T) {
	s, _ := newTestServer()
	res, err := s.handleRenderFlow(context.Background(), callRequest("render_flow", map[string]any{"flow_id": "flow-1"}))
	require.NoError(t, err)
	out := resultText(t, res)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "A --> B")
}

func TestValidateFlow(t *testing.T) {
	s, store := newTestServer()
	ctx := context.Background()

	resp, err := s.handleValidate(ctx, callRequest("validate_flow", nil), map[string]any{"flow_id": "flow-1"})
	require.NoError(t, err)
	assert.True(t, resp.Valid)

	bad := sampleFlow()
	bad.ID = "loop"
	bad.Edges = append(bad.Edges, domain.Edge{ID: "ba", SourceNodeID: "B", TargetNodeID: "A"})
	require.NoError(t, store.CreateFlow(ctx, bad))

	resp, err = s.handleValidate(ctx, callRequest("validate_flow", nil), map[string]any{"flow_id": "loop"})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Issues)
}

func TestLayoutFlow(t *testing.T) {
	s, store := newTestServer()
	ctx := context.Background()

	resp, err := s.handleLayout(ctx, callRequest("layout_flow", nil), map[string]any{"flow_id": "flow-1"})
	require.NoError(t, err)
	assert.False(t, resp.Applied)
	require.Contains(t, resp.Positions, "B")
	assert.Greater(t, resp.Positions["B"].Y, resp.Positions["A"].Y)

	resp, err = s.handleLayout(ctx, callRequest("layout_flow", nil), map[string]any{"flow_id": "flow-1", "apply": true})
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	flow, err := store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	for _, n := range flow.Nodes {
		assert.Equal(t, resp.Positions[n.ID], n.Position, n.ID)
	}
}

func TestAddNodeAndConnect(t *testing.T) {
	s, store := newTestServer()
	ctx := context.Background()

	added, err := s.handleAddNode(ctx, callRequest("add_node", nil), map[string]any{
		"flow_id": "flow-1", "type": "delay", "x": 300.0, "y": 40.0,
	})
	require.NoError(t, err)
	require.NotNil(t, added.Node)
	assert.Equal(t, domain.Position{X: 300, Y: 40}, added.Node.Position)

	connected, err := s.handleConnect(ctx, callRequest("connect", nil), map[string]any{
		"flow_id": "flow-1", "source": "B", "target": added.Node.ID, "source_handle": "true",
	})
	require.NoError(t, err)
	require.NotNil(t, connected.Edge)

	flow, err := store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Len(t, flow.Nodes, 3)
	assert.Len(t, flow.Edges, 2)

	_, err = s.handleAddNode(ctx, callRequest("add_node", nil), map[string]any{"flow_id": "flow-1", "type": "teleport"})
	assert.ErrorIs(t, err, domain.ErrUnknownNodeType)

	_, err = s.handleConnect(ctx, callRequest("connect", nil), map[string]any{
		"flow_id": "flow-1", "source": "B", "target": "ghost",
	})
	assert.ErrorIs(t, err, domain.ErrMissingEndpoint)
}

func TestUndoRedo(t *testing.T) {
	s, store := newTestServer()
	ctx := context.Background()
	args := map[string]any{"flow_id": "flow-1"}

	_, err := s.handleUndo(ctx, callRequest("undo", args), args)
	assert.ErrorIs(t, err, session.ErrNothingToUndo)

	added, err := s.handleAddNode(ctx, callRequest("add_node", nil), map[string]any{"flow_id": "flow-1", "type": "script"})
	require.NoError(t, err)

	diff, err := s.handleUndo(ctx, callRequest("undo", args), args)
	require.NoError(t, err)
	assert.Equal(t, []string{added.Node.ID}, diff.RemovedNodes)

	flow, err := store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Len(t, flow.Nodes, 2)

	diff, err = s.handleRedo(ctx, callRequest("redo", args), args)
	require.NoError(t, err)
	require.Len(t, diff.AddedNodes, 1)
	assert.Equal(t, added.Node.ID, diff.AddedNodes[0].ID)
}

func TestRunFlow(t *testing.T) {
	orch := memory.NewOrchestrator()
	require.NoError(t, orch.ScriptEvents("flow-1",
		domain.RunEvent{Type: domain.EventStart, TotalNodes: 2, FlowName: "Login"},
		domain.RunEvent{Type: domain.EventNodeResult, NodeID: "A", Status: "success"},
		domain.RunEvent{Type: domain.EventNodeResult, NodeID: "B", Status: "success"},
		domain.RunEvent{Type: domain.EventDone},
	))
	s, store := newTestServer(WithOrchestrator(orch))

	report, err := s.handleRun(context.Background(), callRequest("run_flow", nil), map[string]any{"flow_id": "flow-1", "environment_id": "dev"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReportCompleted, report.Status)
	assert.Len(t, report.Results, 2)

	reports, err := store.ListRunReports(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}
