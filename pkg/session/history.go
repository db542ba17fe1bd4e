package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/aretw0/testflow/internal/graph"
	"github.com/aretw0/testflow/internal/history"
	"github.com/aretw0/testflow/pkg/domain"
)

var (
	// ErrNothingToUndo is returned when the flow has no undoable write.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo is returned when the flow has no undone write to reapply.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// timeline is the undo history of the writes made through one Manager.
type timeline struct {
	graph *graph.Store
	hist  *history.Manager
}

func (m *Manager) newTimeline(initial domain.FlowGraph) *timeline {
	g := graph.New(graph.WithLogger(m.logger))
	g.Load(initial)
	return &timeline{
		graph: g,
		hist:  history.New(g, history.WithLimit(m.historyLimit), history.WithLogger(m.logger)),
	}
}

// record appends a write to the flow's timeline. A timeline whose head no
// longer matches the stored graph was outdated by another writer and restarts.
// The caller holds the flow lock.
func (m *Manager) record(flowID string, before, after domain.FlowGraph) {
	m.timelinesMu.Lock()
	tl, ok := m.timelines[flowID]
	if !ok || !sameGraph(tl.graph.Snapshot(), before) {
		tl = m.newTimeline(before)
		m.timelines[flowID] = tl
	}
	m.timelinesMu.Unlock()

	tl.graph.Load(after)
	tl.hist.Push()
}

// current returns the flow's timeline if it still matches stored.
func (m *Manager) current(flowID string, stored domain.FlowGraph) *timeline {
	m.timelinesMu.Lock()
	defer m.timelinesMu.Unlock()

	tl, ok := m.timelines[flowID]
	if !ok {
		return nil
	}
	if !sameGraph(tl.graph.Snapshot(), stored) {
		m.logger.Debug("discarding outdated flow history", "flow_id", flowID)
		delete(m.timelines, flowID)
		return nil
	}
	return tl
}

// Forget drops the undo history of a flow.
func (m *Manager) Forget(flowID string) {
	m.timelinesMu.Lock()
	defer m.timelinesMu.Unlock()
	delete(m.timelines, flowID)
}

// CanUndo reports whether Undo would succeed without consulting the store.
func (m *Manager) CanUndo(flowID string) bool {
	m.timelinesMu.Lock()
	defer m.timelinesMu.Unlock()
	tl, ok := m.timelines[flowID]
	return ok && tl.hist.CanUndo()
}

// Undo reverts the last write made through this manager and saves the
// restored graph. The stored viewport is kept.
func (m *Manager) Undo(ctx context.Context, flowID string) (*domain.GraphDiff, error) {
	return m.step(ctx, flowID, true)
}

// Redo reapplies the last undone write.
func (m *Manager) Redo(ctx context.Context, flowID string) (*domain.GraphDiff, error) {
	return m.step(ctx, flowID, false)
}

func (m *Manager) step(ctx context.Context, flowID string, undo bool) (*domain.GraphDiff, error) {
	var diff *domain.GraphDiff
	err := m.WithLock(ctx, flowID, func(ctx context.Context) error {
		stored, err := m.store.LoadFlow(ctx, flowID)
		if err != nil {
			return err
		}
		tl := m.current(flowID, stored.FlowGraph)

		var ok bool
		if undo {
			if tl != nil {
				diff, ok = tl.hist.Undo()
			}
			if !ok {
				return ErrNothingToUndo
			}
		} else {
			if tl != nil {
				diff, ok = tl.hist.Redo()
			}
			if !ok {
				return ErrNothingToRedo
			}
		}

		restored := tl.graph.Snapshot()
		restored.Viewport = stored.Viewport
		if err := m.store.SaveFlow(ctx, flowID, restored); err != nil {
			if undo {
				tl.hist.Redo()
			} else {
				tl.hist.Undo()
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return diff, nil
}

// sameGraph compares the structural content of two graphs by their JSON form,
// so decoded numbers and nil versus empty collections compare equal.
func sameGraph(a, b domain.FlowGraph) bool {
	if len(a.Nodes) != len(b.Nodes) || len(a.Edges) != len(b.Edges) {
		return false
	}
	ja, errA := structural(a)
	jb, errB := structural(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

func structural(g domain.FlowGraph) ([]byte, error) {
	nodes, edges := g.Nodes, g.Edges
	if len(nodes) == 0 {
		nodes = nil
	}
	if len(edges) == 0 {
		edges = nil
	}
	return json.Marshal(struct {
		Nodes []domain.Node `json:"nodes"`
		Edges []domain.Edge `json:"edges"`
	}{nodes, edges})
}
