// Package socket carries run event streams over WebSocket. Handler relays an
// orchestrator to browser or remote clients; Orchestrator is the dialing side.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	wsBufferSize   = 1024
)

// Message types sent by the client.
const (
	TypeRun    = "run"
	TypeCancel = "cancel"
)

// Request is a client control message.
type Request struct {
	Type          string `json:"type"`
	FlowID        string `json:"flow_id,omitempty"`
	EnvironmentID string `json:"environment_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler relays run streams over WebSocket. A connection carries one run:
// the client sends a run request, receives every frame as a text message and
// sees a normal close when the stream ends. A cancel message stops the run.
type Handler struct {
	orchestrator ports.Orchestrator
	logger       *slog.Logger
}

// NewHandler creates a handler over orchestrator.
func NewHandler(orchestrator ports.Orchestrator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{orchestrator: orchestrator, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var req Request
	if err := conn.ReadJSON(&req); err != nil || req.Type != TypeRun || req.FlowID == "" {
		closeWith(conn, websocket.CloseUnsupportedData, "expected run request")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readControl(conn, cancel)

	log := h.logger.With("flow_id", req.FlowID)
	stream, err := h.orchestrator.RunStream(ctx, req.FlowID, req.EnvironmentID)
	if err != nil {
		log.Warn("run stream failed to open", "err", err)
		writeError(conn, err)
		closeWith(conn, websocket.CloseInternalServerErr, "run failed")
		return
	}
	defer stream.Close()

	frames := make(chan []byte)
	failed := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			frame, err := stream.Recv()
			if err != nil {
				failed <- err
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				var err error
				select {
				case err = <-failed:
				default:
				}
				if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
					log.Warn("run stream failed", "err", err)
					writeError(conn, err)
				}
				closeWith(conn, websocket.CloseNormalClosure, "")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Info("WebSocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			closeWith(conn, websocket.CloseNormalClosure, "cancelled")
			return
		}
	}
}

// readControl cancels the run on a cancel message or a dropped connection.
func readControl(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Type == TypeCancel {
			return
		}
	}
}

func writeError(conn *websocket.Conn, err error) {
	msg, _ := json.Marshal(domain.RunEvent{Type: domain.EventError, Error: err.Error()})
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, msg)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
