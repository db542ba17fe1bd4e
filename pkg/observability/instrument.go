package observability

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aretw0/testflow/internal/runsync"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
)

// Instrument wraps an orchestrator so every stream it opens reports to hooks.
// It is meant for relays that forward frames without running a synchronizer.
func Instrument(o ports.Orchestrator, hooks domain.RunHooks) ports.Orchestrator {
	return &instrumented{next: o, hooks: hooks}
}

type instrumented struct {
	next  ports.Orchestrator
	hooks domain.RunHooks
}

func (i *instrumented) RunStream(ctx context.Context, flowID, environmentID string) (ports.EventStream, error) {
	if i.hooks.OnRunStart != nil {
		i.hooks.OnRunStart(ctx, flowID)
	}
	stream, err := i.next.RunStream(ctx, flowID, environmentID)
	if err != nil {
		i.finish(ctx, flowID, nil, err)
		return nil, err
	}
	return &instrumentedStream{
		EventStream: stream,
		ctx:         ctx,
		flowID:      flowID,
		owner:       i,
	}, nil
}

func (i *instrumented) finish(ctx context.Context, flowID string, report *domain.RunReport, err error) {
	if i.hooks.OnRunFinish != nil {
		i.hooks.OnRunFinish(ctx, flowID, report, err)
	}
}

type instrumentedStream struct {
	ports.EventStream
	ctx    context.Context
	flowID string
	owner  *instrumented
	once   sync.Once
}

func (s *instrumentedStream) Recv() ([]byte, error) {
	frame, err := s.EventStream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done(nil, domain.ErrStreamClosed)
		} else {
			s.done(nil, err)
		}
		return frame, err
	}

	ev, decodeErr := runsync.Decode(frame)
	if decodeErr != nil {
		if s.owner.hooks.OnFrameDropped != nil {
			s.owner.hooks.OnFrameDropped(s.ctx, decodeErr.Error())
		}
		return frame, nil
	}
	if s.owner.hooks.OnEvent != nil {
		s.owner.hooks.OnEvent(s.ctx, ev)
	}
	switch ev.Type {
	case domain.EventDone:
		report := &domain.RunReport{FlowID: s.flowID, Status: domain.ReportCompleted}
		if ev.Summary != nil {
			report.Summary = *ev.Summary
			if ev.Summary.FailedCount > 0 {
				report.Status = domain.ReportFailed
			}
		}
		s.done(report, nil)
	case domain.EventError:
		s.done(nil, &domain.RunError{FlowID: s.flowID, Message: ev.Error})
	}
	return frame, nil
}

func (s *instrumentedStream) Close() error {
	s.done(nil, nil)
	return s.EventStream.Close()
}

// done reports the first terminal outcome of the stream.
func (s *instrumentedStream) done(report *domain.RunReport, err error) {
	s.once.Do(func() { s.owner.finish(s.ctx, s.flowID, report, err) })
}
