package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFlowStoreContract runs a suite of tests to verify that a FlowRepository implementation
// adheres to the defined interface contract.
func RunFlowStoreContract(t *testing.T, store FlowRepository) {
	ctx := context.Background()
	flowID := "contract-flow-" + time.Now().Format("20060102150405")

	newFlow := func(id string) *domain.Flow {
		return &domain.Flow{
			ID:        id,
			Name:      "Contract",
			Variables: map[string]string{"base_url": "http://localhost"},
			FlowGraph: domain.FlowGraph{
				Nodes: []domain.Node{
					{ID: "a", Type: domain.NodeTypeHTTPRequest, Label: "A", Position: domain.Position{X: 1, Y: 2}},
					{ID: "b", Type: domain.NodeTypeDelay, Label: "B", Config: map[string]any{"delay_ms": 500}},
				},
				Edges:    []domain.Edge{{ID: "e1", SourceNodeID: "a", TargetNodeID: "b"}},
				Viewport: domain.Viewport{Zoom: 1},
			},
		}
	}

	t.Run("Create and Load", func(t *testing.T) {
		require.NoError(t, store.CreateFlow(ctx, newFlow(flowID)))

		loaded, err := store.LoadFlow(ctx, flowID)
		require.NoError(t, err)
		assert.Equal(t, "Contract", loaded.Name)
		assert.Equal(t, "http://localhost", loaded.Variables["base_url"])
		require.Len(t, loaded.Nodes, 2)
		assert.Equal(t, domain.Position{X: 1, Y: 2}, loaded.Nodes[0].Position)
		require.Len(t, loaded.Edges, 1)
		assert.Equal(t, "b", loaded.Edges[0].TargetNodeID)
		// Numbers may come back as float64 after a JSON round trip.
		assert.NotNil(t, loaded.Nodes[1].Config["delay_ms"])
	})

	t.Run("Save Graph", func(t *testing.T) {
		graph := newFlow(flowID).FlowGraph
		graph.Nodes = graph.Nodes[:1]
		graph.Edges = nil
		graph.Viewport = domain.Viewport{X: 10, Y: 20, Zoom: 1.5}

		require.NoError(t, store.SaveFlow(ctx, flowID, graph))

		loaded, err := store.LoadFlow(ctx, flowID)
		require.NoError(t, err)
		assert.Len(t, loaded.Nodes, 1)
		assert.Empty(t, loaded.Edges)
		assert.Equal(t, 1.5, loaded.Viewport.Zoom)
		assert.Equal(t, "Contract", loaded.Name, "SaveFlow must keep flow metadata")
	})

	t.Run("Save Graph Non-Existent", func(t *testing.T) {
		err := store.SaveFlow(ctx, "missing-"+flowID, domain.FlowGraph{})
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.LoadFlow(ctx, "missing-"+flowID)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("Run Reports", func(t *testing.T) {
		for i, status := range []domain.ReportStatus{domain.ReportCompleted, domain.ReportFailed} {
			report := &domain.RunReport{
				FlowID:  flowID,
				Status:  status,
				Summary: domain.RunSummary{TotalNodes: 2, PassedCount: 2 - i},
				Results: []domain.RunResult{{NodeID: "a", Status: domain.RunStatusSuccess, ExecutionOrder: 1}},
			}
			require.NoError(t, store.SaveRunReport(ctx, flowID, report))
		}

		reports, err := store.ListRunReports(ctx, flowID)
		require.NoError(t, err)
		require.Len(t, reports, 2)
		assert.Equal(t, domain.ReportCompleted, reports[0].Status)
		assert.Equal(t, domain.ReportFailed, reports[1].Status)
		assert.Equal(t, "a", reports[0].Results[0].NodeID)
	})

	t.Run("Persisted Payload Has No Run Fields", func(t *testing.T) {
		loaded, err := store.LoadFlow(ctx, flowID)
		require.NoError(t, err)
		b, err := json.Marshal(loaded.FlowGraph)
		require.NoError(t, err)
		for _, field := range []string{"run_status", "status_code", "elapsed_ms", "is_active", "iterations_completed"} {
			assert.NotContains(t, string(b), field)
		}
	})

	t.Run("List", func(t *testing.T) {
		id2 := flowID + "-2"
		require.NoError(t, store.CreateFlow(ctx, newFlow(id2)))
		defer func() { _ = store.DeleteFlow(ctx, id2) }()

		ids, err := store.ListFlows(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, flowID)
		assert.Contains(t, ids, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.DeleteFlow(ctx, flowID))

		_, err := store.LoadFlow(ctx, flowID)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound, "Load after Delete should return ErrFlowNotFound")
	})
}
