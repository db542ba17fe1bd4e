package loam_test

import (
	"context"
	"testing"

	"github.com/aretw0/testflow/internal/testutils"
	"github.com/aretw0/testflow/pkg/adapters/loam"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.FlowStore = (*loam.Store)(nil)

func sampleFlow() *domain.Flow {
	return &domain.Flow{
		ID:          "login",
		Name:        "Login smoke",
		Description: "Logs in and checks the session.",
		Variables:   map[string]string{"base_url": "http://localhost"},
		FlowGraph: domain.FlowGraph{
			Nodes: []domain.Node{
				{ID: "a", Type: domain.NodeTypeHTTPRequest, Label: "Login", Position: domain.Position{X: 10, Y: 20}},
				{ID: "b", Type: domain.NodeTypeAssertion, Label: "Check"},
			},
			Edges:    []domain.Edge{{ID: "ab", SourceNodeID: "a", TargetNodeID: "b"}},
			Viewport: domain.Viewport{Zoom: 1},
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	_, repo := testutils.SetupTestRepo(t)
	store := loam.New(repo)
	ctx := context.Background()

	require.NoError(t, store.CreateFlow(ctx, sampleFlow()))

	flow, err := store.LoadFlow(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, "Login smoke", flow.Name)
	assert.Equal(t, "Logs in and checks the session.", flow.Description)
	assert.Equal(t, "http://localhost", flow.Variables["base_url"])
	require.Len(t, flow.Nodes, 2)
	assert.Equal(t, domain.Position{X: 10, Y: 20}, flow.Nodes[0].Position)
	assert.Equal(t, domain.NodeTypeAssertion, flow.Nodes[1].Type)
	require.Len(t, flow.Edges, 1)
	assert.Equal(t, "a", flow.Edges[0].SourceNodeID)
	assert.Equal(t, "b", flow.Edges[0].TargetNodeID)
}

func TestStore_SaveFlowKeepsMetadata(t *testing.T) {
	_, repo := testutils.SetupTestRepo(t)
	store := loam.New(repo)
	ctx := context.Background()
	require.NoError(t, store.CreateFlow(ctx, sampleFlow()))

	require.NoError(t, store.SaveFlow(ctx, "login", domain.FlowGraph{
		Nodes:    []domain.Node{{ID: "a", Type: domain.NodeTypeHTTPRequest, Label: "Login"}},
		Viewport: domain.Viewport{Zoom: 2},
	}))

	flow, err := store.LoadFlow(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, "Login smoke", flow.Name)
	assert.Len(t, flow.Nodes, 1)
	assert.Empty(t, flow.Edges)
	assert.Equal(t, 2.0, flow.Viewport.Zoom)
}

func TestStore_MissingFlow(t *testing.T) {
	_, repo := testutils.SetupTestRepo(t)
	store := loam.New(repo)

	_, err := store.LoadFlow(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	assert.ErrorIs(t, store.SaveFlow(context.Background(), "ghost", domain.FlowGraph{}), domain.ErrFlowNotFound)
}

func TestStore_RunReports(t *testing.T) {
	_, repo := testutils.SetupTestRepo(t)
	store := loam.New(repo)
	ctx := context.Background()

	reports, err := store.ListRunReports(ctx, "login")
	require.NoError(t, err)
	assert.Empty(t, reports)

	for _, status := range []domain.ReportStatus{domain.ReportCompleted, domain.ReportFailed} {
		require.NoError(t, store.SaveRunReport(ctx, "login", &domain.RunReport{FlowID: "login", Status: status}))
	}

	reports, err = store.ListRunReports(ctx, "login")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, domain.ReportCompleted, reports[0].Status)
	assert.Equal(t, domain.ReportFailed, reports[1].Status)
}
