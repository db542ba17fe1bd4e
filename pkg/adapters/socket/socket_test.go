package socket_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/pkg/adapters/memory"
	"github.com/aretw0/testflow/pkg/adapters/socket"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSocket_RelaysFramesUntilEOF(t *testing.T) {
	orch := memory.NewOrchestrator()
	orch.Script("flow-1", `{"type":"start","total_nodes":1}`, `{"type":"done"}`)
	srv := httptest.NewServer(socket.NewHandler(orch, nil))
	defer srv.Close()

	stream, err := socket.NewOrchestrator(wsURL(srv)).RunStream(context.Background(), "flow-1", "env")
	require.NoError(t, err)
	defer stream.Close()

	frame, err := stream.Recv()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"start","total_nodes":1}`, string(frame))
	frame, err = stream.Recv()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done"}`, string(frame))

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSocket_EditorRun(t *testing.T) {
	orch := memory.NewOrchestrator()
	require.NoError(t, orch.ScriptEvents("flow-1",
		domain.RunEvent{Type: domain.EventStart, TotalNodes: 1},
		domain.RunEvent{Type: domain.EventNodeResult, NodeID: "A", Status: "success", StatusCode: 204},
		domain.RunEvent{Type: domain.EventDone},
	))
	srv := httptest.NewServer(socket.NewHandler(orch, nil))
	defer srv.Close()

	store := memory.NewStore(&domain.Flow{ID: "flow-1", FlowGraph: domain.FlowGraph{
		Nodes: []domain.Node{{ID: "A", Type: domain.NodeTypeHTTPRequest}},
	}})
	ctx := context.Background()
	ed, err := testflow.Open(ctx, store, "flow-1", testflow.WithOrchestrator(socket.NewOrchestrator(wsURL(srv))))
	require.NoError(t, err)
	defer ed.Close(ctx)

	report, err := ed.Run(ctx, "")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 204, ed.NodeRun("A").StatusCode)
}

func TestSocket_RejectsBadRequest(t *testing.T) {
	srv := httptest.NewServer(socket.NewHandler(memory.NewOrchestrator(), nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(socket.Request{Type: "subscribe"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "got %v", err)
}

func TestSocket_CloseCancelsRun(t *testing.T) {
	orch := memory.NewOrchestrator().WithDelay(time.Second)
	orch.Script("flow-1", `{"type":"start"}`, `{"type":"done"}`)
	srv := httptest.NewServer(socket.NewHandler(orch, nil))
	defer srv.Close()

	stream, err := socket.NewOrchestrator(wsURL(srv)).RunStream(context.Background(), "flow-1", "")
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.NoError(t, stream.Close(), "close is idempotent")

	_, err = stream.Recv()
	assert.Error(t, err)
}
