// Package runsync projects an orchestrator event stream onto the run state of
// a graph store and assembles the final run report.
//
// The synchronizer is a passive projector: it renders what the orchestrator
// reports and never infers reachability or skip propagation on its own.
package runsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/testflow/internal/graph"
	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
)

// ReportSaver is the subset of the storage collaborator used at run end.
type ReportSaver interface {
	SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error
}

// Synchronizer runs flows and reconciles their events into a graph store.
type Synchronizer struct {
	store        *graph.Store
	orchestrator ports.Orchestrator
	reports      ReportSaver

	logger       *slog.Logger
	hooks        domain.RunHooks
	activeWindow time.Duration
	now          func() time.Time
	envName      EnvironmentNamer

	running atomic.Bool

	timersMu sync.Mutex
	timers   map[string]edgeTimer
	timerGen uint64
}

// edgeTimer is the pending deactivation of one active edge. A callback only
// clears the edge when its generation is still the current one.
type edgeTimer struct {
	timer *time.Timer
	gen   uint64
}

// New creates a synchronizer bound to one graph store.
func New(store *graph.Store, orchestrator ports.Orchestrator, reports ReportSaver, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:        store,
		orchestrator: orchestrator,
		reports:      reports,
		logger:       logging.NewNop(),
		activeWindow: DefaultActiveWindow,
		now:          time.Now,
		timers:       make(map[string]edgeTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a run is streaming.
func (s *Synchronizer) Running() bool {
	return s.running.Load()
}

// Run executes the flow and blocks until the stream completes.
//
// All run state is cleared before the stream opens. Events are applied strictly
// in arrival order. On a done event the report is assembled, saved and returned.
// An error event yields a *domain.RunError and no report. Cancelling ctx stops
// consumption and leaves already-applied state in place.
func (s *Synchronizer) Run(ctx context.Context, flowID, environmentID string) (report *domain.RunReport, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrRunInProgress
	}
	defer s.running.Store(false)

	s.stopTimers()
	s.store.ResetRunState()

	if s.hooks.OnRunStart != nil {
		s.hooks.OnRunStart(ctx, flowID)
	}
	defer func() {
		if s.hooks.OnRunFinish != nil {
			s.hooks.OnRunFinish(ctx, flowID, report, err)
		}
	}()

	stream, err := s.orchestrator.RunStream(ctx, flowID, environmentID)
	if err != nil {
		return nil, fmt.Errorf("open run stream for %s: %w", flowID, err)
	}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	acc := newAccumulator(flowID, environmentID, s.now())
	if environmentID != "" && s.envName != nil {
		acc.environmentName = s.envName(environmentID)
	}
	log := s.logger.With("flow_id", flowID)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, recvErr := stream.Recv()
		if recvErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(recvErr, io.EOF) {
				return nil, domain.ErrStreamClosed
			}
			return nil, fmt.Errorf("receive run event: %w", recvErr)
		}

		ev, decodeErr := Decode(frame)
		if decodeErr != nil {
			log.Debug("dropping malformed run event", "err", decodeErr)
			if s.hooks.OnFrameDropped != nil {
				s.hooks.OnFrameDropped(ctx, decodeErr.Error())
			}
			continue
		}
		if s.hooks.OnEvent != nil {
			s.hooks.OnEvent(ctx, ev)
		}

		switch ev.Type {
		case domain.EventDone:
			report := acc.finish(ev, s.now())
			if err := s.reports.SaveRunReport(ctx, flowID, report); err != nil {
				return report, fmt.Errorf("save run report for %s: %w", flowID, err)
			}
			log.Info("run completed", "status", report.Status, "results", len(report.Results))
			return report, nil
		case domain.EventError:
			log.Warn("run failed", "err", ev.Error)
			return nil, &domain.RunError{FlowID: flowID, Message: ev.Error}
		default:
			s.apply(ev, acc, log)
		}
	}
}

// apply projects one non-terminal event onto the store.
func (s *Synchronizer) apply(ev *domain.RunEvent, acc *accumulator, log *slog.Logger) {
	switch ev.Type {
	case domain.EventStart:
		acc.start(ev)

	case domain.EventNodeStart:
		s.store.UpdateNodeRun(ev.NodeID, func(st *domain.NodeRunState) {
			st.Status = domain.RunStatusRunning
			st.Error = ""
			if ev.Iteration > 0 {
				st.Iteration = ev.Iteration
			}
		})

	case domain.EventNodeResult:
		status := resultStatus(ev.Status)
		acc.record(ev, status)
		known := s.store.UpdateNodeRun(ev.NodeID, func(st *domain.NodeRunState) {
			st.Status = status
			st.StatusCode = ev.StatusCode
			st.ElapsedMs = ev.ElapsedMs
			st.AssertionResults = ev.AssertionResults
			st.BranchTaken = ev.BranchTaken
			st.Error = ev.Error
			if ev.Iteration > 0 {
				st.Iteration = ev.Iteration
			}
			if ev.IterationsCompleted > 0 {
				st.IterationsCompleted = ev.IterationsCompleted
			}
		})
		if !known {
			log.Debug("result for node not in graph", "node_id", ev.NodeID)
		}
		if ev.BranchTaken != domain.BranchNone {
			s.markBranch(ev.NodeID, ev.BranchTaken)
		}

	case domain.EventNodeSkipped:
		acc.record(ev, domain.RunStatusSkipped)
		s.store.UpdateNodeRun(ev.NodeID, func(st *domain.NodeRunState) {
			st.Status = domain.RunStatusSkipped
			st.Reason = ev.Reason
		})

	case domain.EventEdgeActive:
		s.activateEdge(ev.EdgeID)

	case domain.EventLoopIteration:
		s.store.UpdateNodeRun(ev.NodeID, func(st *domain.NodeRunState) {
			st.Iteration = ev.Iteration
			st.IterationsTotal = ev.Total
			if done := ev.Iteration - 1; done > st.IterationsCompleted {
				st.IterationsCompleted = done
			}
		})
	}
}

// markBranch colours the outgoing edges of a branching node.
func (s *Synchronizer) markBranch(nodeID string, taken domain.BranchTaken) {
	selected, other, ok := domain.BranchHandle(taken)
	if !ok {
		return
	}
	if e, found := s.store.EdgeOnHandle(nodeID, selected); found {
		s.store.UpdateEdgeRun(e.ID, func(st *domain.EdgeRunState) { st.Status = domain.RunStatusSuccess })
	}
	if e, found := s.store.EdgeOnHandle(nodeID, other); found {
		s.store.UpdateEdgeRun(e.ID, func(st *domain.EdgeRunState) { st.Status = domain.RunStatusSkipped })
	}
}

// activateEdge marks the edge active and (re)arms its deactivation.
// Activation and deactivation both run under timersMu so a superseded
// callback can never clear a newer activation.
func (s *Synchronizer) activateEdge(edgeID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if !s.store.UpdateEdgeRun(edgeID, func(st *domain.EdgeRunState) { st.IsActive = true }) {
		return
	}
	if prev, ok := s.timers[edgeID]; ok {
		prev.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.timers[edgeID] = edgeTimer{
		timer: time.AfterFunc(s.activeWindow, func() { s.deactivateEdge(edgeID, gen) }),
		gen:   gen,
	}
}

func (s *Synchronizer) deactivateEdge(edgeID string, gen uint64) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if cur, ok := s.timers[edgeID]; !ok || cur.gen != gen {
		return
	}
	delete(s.timers, edgeID)
	s.store.UpdateEdgeRun(edgeID, func(st *domain.EdgeRunState) { st.IsActive = false })
}

func (s *Synchronizer) stopTimers() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
}

// Close stops pending edge animations.
func (s *Synchronizer) Close() {
	s.stopTimers()
}

func resultStatus(raw string) domain.RunStatus {
	switch raw {
	case "success", "passed", "ok":
		return domain.RunStatusSuccess
	case "skipped":
		return domain.RunStatusSkipped
	default:
		return domain.RunStatusError
	}
}
