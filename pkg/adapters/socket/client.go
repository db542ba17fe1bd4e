package socket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/testflow/pkg/ports"
	"github.com/gorilla/websocket"
)

// Orchestrator implements ports.Orchestrator by dialing a Handler.
type Orchestrator struct {
	URL    string
	Dialer *websocket.Dialer
	// Header is sent with the handshake, e.g. Authorization.
	Header http.Header
}

var _ ports.Orchestrator = (*Orchestrator)(nil)

// NewOrchestrator creates a dialing orchestrator for a ws:// or wss:// URL.
func NewOrchestrator(url string) *Orchestrator {
	return &Orchestrator{URL: url, Dialer: websocket.DefaultDialer, Header: http.Header{}}
}

// RunStream dials the socket and requests a run of flowID.
func (o *Orchestrator) RunStream(ctx context.Context, flowID, environmentID string) (ports.EventStream, error) {
	conn, _, err := o.Dialer.DialContext(ctx, o.URL, o.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", o.URL, err)
	}
	req := Request{Type: TypeRun, FlowID: flowID, EnvironmentID: environmentID}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send run request: %w", err)
	}
	return &stream{conn: conn}, nil
}

type stream struct {
	conn *websocket.Conn
	once sync.Once
}

// Recv returns the next text frame. A normal close ends the stream with io.EOF.
func (s *stream) Recv() ([]byte, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// Close asks the server to cancel and drops the connection.
func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteJSON(Request{Type: TypeCancel})
		err = s.conn.Close()
	})
	return err
}
