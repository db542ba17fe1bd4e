package http

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/pkg/adapters/memory"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func branchFlow() *domain.Flow {
	return &domain.Flow{
		ID:   "flow-1",
		Name: "Branching",
		FlowGraph: domain.FlowGraph{
			Nodes: []domain.Node{
				{ID: "A", Type: domain.NodeTypeHTTPRequest, Label: "Login"},
				{ID: "B", Type: domain.NodeTypeAssertion, Label: "Check"},
				{ID: "C", Type: domain.NodeTypeScript, Label: "Happy"},
			},
			Edges: []domain.Edge{
				{ID: "ab", SourceNodeID: "A", TargetNodeID: "B"},
				{ID: "bc", SourceNodeID: "B", TargetNodeID: "C", SourceHandle: domain.HandleTrue},
			},
		},
	}
}

func TestClient_Contract(t *testing.T) {
	srv := httptest.NewServer(NewHandler(memory.NewStore()))
	defer srv.Close()

	ports.RunFlowStoreContract(t, NewClient(srv.URL))
}

func TestGetHealthAndInfo(t *testing.T) {
	handler := NewHandler(memory.NewStore())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/info", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"api_version":"1.0.0"`)
	assert.Contains(t, rr.Body.String(), strings.TrimSpace(testflow.Version))
}

func TestSpec_DocumentsEveryRoute(t *testing.T) {
	doc, err := Spec()
	require.NoError(t, err)

	router, ok := NewServer(memory.NewStore()).Routes().(chi.Routes)
	require.True(t, ok)

	err = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route == "/openapi.yaml" || route == "/swagger" || route == "/metrics" {
			return nil
		}
		path := strings.TrimSuffix(route, "/")
		item := doc.Paths.Value(path)
		if assert.NotNil(t, item, "undocumented route %s", path) {
			assert.NotNil(t, item.GetOperation(method), "undocumented operation %s %s", method, path)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestEditor_OverHTTP(t *testing.T) {
	store := memory.NewStore(branchFlow())
	orch := memory.NewOrchestrator()
	orch.Script("flow-1",
		`{"type":"start","total_nodes":3,"flow_name":"Branching"}`,
		`{"type":"node_start","node_id":"A"}`,
		`{"type":"node_result","node_id":"A","status":"success","status_code":200}`,
		`{"type":"edge_active","edge_id":"ab"}`,
		`{"type":"node_result","node_id":"B","status":"success","branch_taken":true}`,
		`{"type":"node_result","node_id":"C","status":"success"}`,
		`{"type":"done"}`,
	)
	srv := httptest.NewServer(NewHandler(store, WithOrchestrator(orch)))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()
	ed, err := testflow.Open(ctx, client, "flow-1", testflow.WithOrchestrator(client), testflow.WithSaveDelay(time.Hour))
	require.NoError(t, err)

	report, err := ed.Run(ctx, "staging")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportCompleted, report.Status)
	require.Len(t, report.Results, 3)
	assert.Equal(t, domain.RunStatusSuccess, ed.EdgeRun("bc").Status)

	reports, err := store.ListRunReports(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "staging", reports[0].EnvironmentID)

	_, err = ed.AddNode(domain.NodeTypeDelay, domain.Position{X: 1, Y: 1})
	require.NoError(t, err)
	require.NoError(t, ed.Close(ctx))

	flow, err := store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Len(t, flow.Nodes, 4)
}

// blockingOrchestrator holds every stream open until the request ends.
type blockingOrchestrator struct {
	started chan struct{}
}

func (o *blockingOrchestrator) RunStream(ctx context.Context, flowID, envID string) (ports.EventStream, error) {
	close(o.started)
	return &blockingStream{ctx: ctx}, nil
}

type blockingStream struct{ ctx context.Context }

func (s *blockingStream) Recv() ([]byte, error) {
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s *blockingStream) Close() error { return nil }

func TestRunFlow_RejectsConcurrentRun(t *testing.T) {
	orch := &blockingOrchestrator{started: make(chan struct{})}
	srv := httptest.NewServer(NewHandler(memory.NewStore(branchFlow()), WithOrchestrator(orch)))
	defer srv.Close()
	client := NewClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, err := client.RunStream(ctx, "flow-1", "")
	require.NoError(t, err)
	defer first.Close()
	<-orch.started

	_, err = client.RunStream(context.Background(), "flow-1", "")
	assert.ErrorIs(t, err, domain.ErrRunInProgress)
}

func TestRunFlow_WithoutOrchestrator(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(memory.NewStore(branchFlow())).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/test-flows/flow-1/run", nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestSubscribeEvents_BroadcastsDiffs(t *testing.T) {
	store := memory.NewStore(branchFlow())
	srv := httptest.NewServer(NewHandler(store))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/test-flows/flow-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	client := NewClient(srv.URL)
	graph := branchFlow().FlowGraph
	graph.Nodes[0].Label = "Sign in"
	require.NoError(t, client.SaveFlow(context.Background(), "flow-1", graph))

	stream := newSSEStream(io.NopCloser(reader))
	frame, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "connected", string(frame))
	frame, err = stream.Recv()
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"updated_nodes"`)
	assert.Contains(t, string(frame), "Sign in")
}

func TestLayoutAndValidate(t *testing.T) {
	store := memory.NewStore(branchFlow())
	handler := NewHandler(store)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/test-flows/flow-1/layout", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	flow, err := store.LoadFlow(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.Less(t, flow.Nodes[0].Position.Y, flow.Nodes[1].Position.Y)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/test-flows/ghost/layout", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/test-flows/flow-1/validate", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/test-flows/ghost/validate", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUndoRedo(t *testing.T) {
	store := memory.NewStore(branchFlow())
	handler := NewHandler(store)
	ctx := context.Background()

	patch := `{"nodes":[{"id":"A","type":"http_request","label":"Sign in","position":{"x":0,"y":0}}],"edges":[]}`
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/api/v1/test-flows/flow-1", strings.NewReader(patch)))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/test-flows/flow-1/undo", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"added_nodes"`)

	flow, err := store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Len(t, flow.Nodes, 3)
	assert.Len(t, flow.Edges, 2)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/test-flows/flow-1/undo", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/test-flows/flow-1/redo", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	flow, err = store.LoadFlow(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, flow.Nodes, 1)
	assert.Equal(t, "Sign in", flow.Nodes[0].Label)
}

func TestSaveFlowGraph_RejectsInvalidGraph(t *testing.T) {
	store := memory.NewStore(branchFlow())
	handler := NewHandler(store)

	for name, body := range map[string]string{
		"Missing Endpoint": `{"nodes":[{"id":"A","type":"http_request"}],` +
			`"edges":[{"id":"ax","source_node_id":"A","target_node_id":"X"}]}`,
		"Occupied Handle": `{"nodes":[{"id":"B","type":"assertion"},{"id":"C","type":"script"},{"id":"D","type":"script"}],` +
			`"edges":[{"id":"bc","source_node_id":"B","target_node_id":"C","source_handle":"source-true"},` +
			`{"id":"bd","source_node_id":"B","target_node_id":"D","source_handle":"source-true"}]}`,
		"Bad Parent": `{"nodes":[{"id":"A","type":"http_request","parent_id":"C"},{"id":"C","type":"script"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/api/v1/test-flows/flow-1", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			flow, err := store.LoadFlow(context.Background(), "flow-1")
			require.NoError(t, err)
			assert.Len(t, flow.Nodes, 3, "nothing is written")
			assert.Len(t, flow.Edges, 2)
		})
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/test-flows/flow-1/undo", nil))
	assert.Equal(t, http.StatusConflict, rr.Code, "rejected writes leave no history")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/test-flows", strings.NewReader(
		`{"id":"bad","name":"Bad","nodes":[{"id":"A","type":"teleport"}]}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	_, err := store.LoadFlow(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestSSEStream_Parsing(t *testing.T) {
	body := ": comment\n" +
		"event: message\n" +
		"data: {\"type\":\"start\"}\n\n" +
		"data: line one\n" +
		"data: line two\n\n" +
		"\n" +
		"data:{\"type\":\"done\"}"
	stream := newSSEStream(io.NopCloser(strings.NewReader(body)))

	frame, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"start"}`, string(frame))

	frame, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(frame))

	frame, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"done"}`, string(frame))

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
