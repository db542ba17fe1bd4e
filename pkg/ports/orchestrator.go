package ports

import (
	"context"

	"github.com/aretw0/testflow/pkg/domain"
)

// EventStream is an open, server-ordered stream of raw run event frames.
type EventStream interface {
	// Recv blocks until the next frame arrives.
	// It returns io.EOF when the stream ends cleanly.
	Recv() ([]byte, error)

	// Close aborts the subscription. It does not cancel the remote run.
	Close() error
}

// Orchestrator starts runs and streams their events.
type Orchestrator interface {
	// RunStream starts a run of the flow and returns its event stream.
	// The stream is bound to ctx: cancelling ctx unblocks Recv.
	RunStream(ctx context.Context, flowID, environmentID string) (EventStream, error)
}

// Palette supplies default labels and configs for newly created nodes.
type Palette interface {
	Template(t domain.NodeType) (label string, config map[string]any, err error)
}
