package memory

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
)

// Orchestrator implements ports.Orchestrator by replaying scripted frames.
// It is meant for tests and offline demos.
type Orchestrator struct {
	mu     sync.Mutex
	script map[string][][]byte
	delay  time.Duration
}

// NewOrchestrator creates an orchestrator with no scripts.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{script: make(map[string][][]byte)}
}

// WithDelay pauses between frames.
func (o *Orchestrator) WithDelay(d time.Duration) *Orchestrator {
	o.delay = d
	return o
}

// Script sets the raw frames replayed for flowID.
func (o *Orchestrator) Script(flowID string, frames ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	raw := make([][]byte, len(frames))
	for i, f := range frames {
		raw[i] = []byte(f)
	}
	o.script[flowID] = raw
}

// ScriptEvents encodes events and sets them as the frames for flowID.
func (o *Orchestrator) ScriptEvents(flowID string, events ...domain.RunEvent) error {
	frames := make([]string, len(events))
	for i, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		frames[i] = string(b)
	}
	o.Script(flowID, frames...)
	return nil
}

// RunStream replays the script of flowID. Unknown flows yield an empty stream.
func (o *Orchestrator) RunStream(ctx context.Context, flowID, environmentID string) (ports.EventStream, error) {
	o.mu.Lock()
	frames := o.script[flowID]
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	return &replayStream{ctx: ctx, cancel: cancel, frames: frames, delay: o.delay}, nil
}

type replayStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	frames [][]byte
	next   int
	delay  time.Duration
}

func (s *replayStream) Recv() ([]byte, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *replayStream) Close() error {
	s.cancel()
	return nil
}
