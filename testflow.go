package testflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/testflow/internal/graph"
	"github.com/aretw0/testflow/internal/history"
	"github.com/aretw0/testflow/internal/layout"
	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/internal/runsync"
	"github.com/aretw0/testflow/internal/validator"
	"github.com/aretw0/testflow/pkg/adapters/memory"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/persistence"
	"github.com/aretw0/testflow/pkg/ports"
)

// Change is a graph notification delivered to subscribers.
type Change = graph.Change

// ChangeKind classifies a Change.
type ChangeKind = graph.ChangeKind

// Issue is one validation finding.
type Issue = validator.Issue

// runLockTTL bounds how long a crashed replica can hold a flow's run lock.
const runLockTTL = 30 * time.Minute

// Editor is one open editing session of a flow. It combines every graph
// mutation with a history snapshot and a dirty mark for the saver, and runs
// the flow through the orchestrator. All methods are safe for concurrent use.
type Editor struct {
	flowID    string
	name      string
	variables map[string]string

	store   *graph.Store
	history *history.Manager
	saver   *persistence.Saver
	syncer  *runsync.Synchronizer

	storage      ports.FlowStore
	orchestrator ports.Orchestrator
	palette      ports.Palette
	locker       ports.DistributedLocker

	logger       *slog.Logger
	hooks        domain.RunHooks
	newID        graph.IDGenerator
	saveDelay    time.Duration
	historyLimit int
	activeWindow time.Duration
	onSaveError  func(error)
	envName      func(string) string

	// mu makes each mutation and its snapshot one step.
	mu sync.Mutex
}

// Option defines a functional option for configuring the Editor.
type Option func(*Editor)

// WithOrchestrator sets the collaborator that executes runs.
func WithOrchestrator(o ports.Orchestrator) Option {
	return func(e *Editor) {
		e.orchestrator = o
	}
}

// WithPalette sets the node template source. Defaults to memory.NewPalette().
func WithPalette(p ports.Palette) Option {
	return func(e *Editor) {
		e.palette = p
	}
}

// WithLocker guards the one-active-run-per-flow rule across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Editor) {
		e.locker = l
	}
}

// WithLogger sets a custom structured logger for the editor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Editor) {
		e.logger = logger
	}
}

// WithRunHooks registers run observability hooks.
func WithRunHooks(hooks domain.RunHooks) Option {
	return func(e *Editor) {
		e.hooks = hooks
	}
}

// WithIDGenerator sets the generator for new node and edge ids.
func WithIDGenerator(gen graph.IDGenerator) Option {
	return func(e *Editor) {
		e.newID = gen
	}
}

// WithSaveDelay sets the autosave debounce window.
func WithSaveDelay(d time.Duration) Option {
	return func(e *Editor) {
		e.saveDelay = d
	}
}

// WithHistoryLimit bounds the undo history.
func WithHistoryLimit(n int) Option {
	return func(e *Editor) {
		e.historyLimit = n
	}
}

// WithEnvironmentNamer resolves the environment name recorded in run reports.
func WithEnvironmentNamer(fn func(environmentID string) string) Option {
	return func(e *Editor) {
		e.envName = fn
	}
}

// WithActiveWindow sets how long an edge pulses after it is traversed.
func WithActiveWindow(d time.Duration) Option {
	return func(e *Editor) {
		e.activeWindow = d
	}
}

// WithSaveErrorHandler receives autosave failures. They are non-fatal.
func WithSaveErrorHandler(fn func(error)) Option {
	return func(e *Editor) {
		e.onSaveError = fn
	}
}

// Open loads a flow from storage and starts an editing session.
func Open(ctx context.Context, storage ports.FlowStore, flowID string, opts ...Option) (*Editor, error) {
	e := &Editor{
		flowID:       flowID,
		storage:      storage,
		palette:      memory.NewPalette(),
		logger:       logging.NewNop(),
		newID:        graph.UUIDGenerator,
		saveDelay:    persistence.DefaultDelay,
		historyLimit: history.DefaultLimit,
		activeWindow: runsync.DefaultActiveWindow,
	}
	for _, opt := range opts {
		opt(e)
	}

	flow, err := storage.LoadFlow(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("load flow %s: %w", flowID, err)
	}
	e.name = flow.Name
	e.variables = flow.Variables

	log := e.logger.With("flow_id", flowID)
	e.store = graph.New(graph.WithIDGenerator(e.newID), graph.WithLogger(log))
	if dropped := e.store.Load(flow.FlowGraph); dropped > 0 {
		log.Warn("flow loaded with invalid records removed", "dropped", dropped)
	}
	e.history = history.New(e.store, history.WithLimit(e.historyLimit), history.WithLogger(log))

	saverOpts := []persistence.Option{persistence.WithDelay(e.saveDelay), persistence.WithLogger(log)}
	if e.onSaveError != nil {
		saverOpts = append(saverOpts, persistence.WithErrorHandler(e.onSaveError))
	}
	e.saver = persistence.NewSaver(flowID, storage, e.store.Snapshot, saverOpts...)

	if e.orchestrator != nil {
		e.syncer = runsync.New(e.store, e.orchestrator, storage,
			runsync.WithLogger(log),
			runsync.WithHooks(e.hooks),
			runsync.WithActiveWindow(e.activeWindow),
			runsync.WithEnvironmentNamer(e.envName),
		)
	}
	return e, nil
}

// FlowID returns the id of the open flow.
func (e *Editor) FlowID() string { return e.flowID }

// Name returns the flow name.
func (e *Editor) Name() string { return e.name }

// Variables returns a copy of the flow variables.
func (e *Editor) Variables() map[string]string {
	out := make(map[string]string, len(e.variables))
	for k, v := range e.variables {
		out[k] = v
	}
	return out
}

// Graph returns a deep copy of the structural graph.
func (e *Editor) Graph() domain.FlowGraph { return e.store.Snapshot() }

// Node returns a copy of one node.
func (e *Editor) Node(id string) (domain.Node, bool) { return e.store.Node(id) }

// Edge returns one edge.
func (e *Editor) Edge(id string) (domain.Edge, bool) { return e.store.Edge(id) }

// NodeRun returns the run state of a node.
func (e *Editor) NodeRun(id string) domain.NodeRunState { return e.store.NodeRun(id) }

// EdgeRun returns the run state of an edge.
func (e *Editor) EdgeRun(id string) domain.EdgeRunState { return e.store.EdgeRun(id) }

// RunStates returns copies of all node and edge run states.
func (e *Editor) RunStates() (map[string]domain.NodeRunState, map[string]domain.EdgeRunState) {
	return e.store.RunStates()
}

// Subscribe registers an observer of graph and run-state changes.
// Observers may read the editor but must not call mutating Editor methods.
func (e *Editor) Subscribe(fn func(Change)) func() {
	return e.store.Subscribe(fn)
}

// Dirty reports whether local edits are not yet saved.
func (e *Editor) Dirty() bool { return e.saver.Dirty() }

// CanUndo reports whether Undo would change the graph.
func (e *Editor) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether Redo would change the graph.
func (e *Editor) CanRedo() bool { return e.history.CanRedo() }

// committed records a structural edit: one snapshot and a dirty mark.
func (e *Editor) committed() {
	e.history.Push()
	e.saver.MarkDirty()
}

// AddNode creates a node of type t from the palette template at pos.
func (e *Editor) AddNode(t domain.NodeType, pos domain.Position) (domain.Node, error) {
	label, config, err := e.palette.Template(t)
	if err != nil {
		return domain.Node{}, err
	}
	return e.InsertNode(domain.Node{Type: t, Label: label, Position: pos, Config: config})
}

// InsertNode adds a fully specified node. An empty id is generated.
func (e *Editor) InsertNode(n domain.Node) (domain.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.store.AddNode(n)
	if err != nil {
		return domain.Node{}, err
	}
	e.committed()
	return out, nil
}

// Connect adds an edge. On a branching source, connecting a handle that is
// already in use replaces the previous edge (last write wins) in one step.
func (e *Editor) Connect(edge domain.Edge) (domain.Edge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	source, ok := e.store.Node(edge.SourceNodeID)
	if ok && source.Type.Branching() {
		if old, taken := e.store.EdgeOnHandle(edge.SourceNodeID, edge.SourceHandle); taken {
			if _, targetOK := e.store.Node(edge.TargetNodeID); !targetOK {
				return domain.Edge{}, fmt.Errorf("connect %s: %w", edge.SourceNodeID, domain.ErrMissingEndpoint)
			}
			e.store.DeleteEdge(old.ID)
			out, err := e.store.AddEdge(edge)
			if err != nil {
				if _, restoreErr := e.store.AddEdge(old); restoreErr != nil {
					e.logger.Error("failed to restore replaced edge", "edge_id", old.ID, "err", restoreErr)
				}
				return domain.Edge{}, err
			}
			e.logger.Debug("branch edge replaced", "flow_id", e.flowID, "old_edge_id", old.ID, "edge_id", out.ID)
			e.committed()
			return out, nil
		}
	}

	out, err := e.store.AddEdge(edge)
	if err != nil {
		return domain.Edge{}, err
	}
	e.committed()
	return out, nil
}

// DeleteNode removes a node and its incident edges. Unknown ids are a no-op.
func (e *Editor) DeleteNode(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.DeleteNode(id) {
		return false
	}
	e.committed()
	return true
}

// DeleteEdge removes an edge. Unknown ids are a no-op.
func (e *Editor) DeleteEdge(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.DeleteEdge(id) {
		return false
	}
	e.committed()
	return true
}

// UpdateNode merges a patch into a node. Unknown ids are a no-op.
func (e *Editor) UpdateNode(id string, p domain.NodePatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.store.UpdateNode(id, p)
	if err != nil || !ok {
		return err
	}
	e.committed()
	return nil
}

// UpdateEdge applies a patch to an edge. Unknown ids are a no-op.
func (e *Editor) UpdateEdge(id string, p domain.EdgePatch) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.UpdateEdge(id, p) {
		return false
	}
	e.committed()
	return true
}

// DuplicateNode clones a node without its edges.
func (e *Editor) DuplicateNode(id string) (domain.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.store.DuplicateNode(id)
	if ok {
		e.committed()
	}
	return n, ok
}

// BeginDrag starts a drag gesture. Moves until EndDrag share one snapshot.
func (e *Editor) BeginDrag() {
	e.history.BeginGesture()
}

// DragNode moves a node during a gesture.
func (e *Editor) DragNode(id string, pos domain.Position) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.MoveNode(id, pos) {
		return false
	}
	e.committed()
	return true
}

// EndDrag releases the gesture and takes its single snapshot.
func (e *Editor) EndDrag() {
	e.history.EndGesture(false)
}

// SetViewport records pan/zoom. It is saved but not part of undo history.
func (e *Editor) SetViewport(v domain.Viewport) {
	if e.store.Viewport() == v {
		return
	}
	e.store.SetViewport(v)
	e.saver.MarkDirty()
}

// Undo reverts the last structural edit.
func (e *Editor) Undo() (*domain.GraphDiff, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	diff, ok := e.history.Undo()
	if ok {
		e.saver.MarkDirty()
	}
	return diff, ok
}

// Redo reapplies the last undone edit.
func (e *Editor) Redo() (*domain.GraphDiff, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	diff, ok := e.history.Redo()
	if ok {
		e.saver.MarkDirty()
	}
	return diff, ok
}

// AutoLayout positions every top-level node with the layered layout and
// records it as one edit when anything moved. It returns the computed positions.
func (e *Editor) AutoLayout() map[string]domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.store.Snapshot()
	positions := layout.Compute(g.Nodes, g.Edges)
	if e.store.ApplyPositions(positions) > 0 {
		e.committed()
	}
	return positions
}

// Validate reports problems in the current graph.
func (e *Editor) Validate() []Issue {
	return validator.Validate(e.store.Snapshot())
}

// Save persists the structural graph now, bypassing the debounce.
func (e *Editor) Save(ctx context.Context) error {
	return e.saver.Save(ctx)
}

// Running reports whether a run is streaming.
func (e *Editor) Running() bool {
	return e.syncer != nil && e.syncer.Running()
}

// Run executes the flow and blocks until the run ends. Run state is
// projected onto the graph while events arrive. See runsync.Synchronizer.Run.
func (e *Editor) Run(ctx context.Context, environmentID string) (*domain.RunReport, error) {
	if e.syncer == nil {
		return nil, errors.New("no orchestrator configured")
	}
	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, "run:"+e.flowID, runLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				e.logger.Warn("failed to release run lock", "flow_id", e.flowID, "err", err)
			}
		}()
	}
	return e.syncer.Run(ctx, e.flowID, environmentID)
}

// Close flushes pending edits and stops background timers.
func (e *Editor) Close(ctx context.Context) error {
	if e.syncer != nil {
		e.syncer.Close()
	}
	return e.saver.Close(ctx)
}

// Discard stops background timers and drops unsaved edits.
func (e *Editor) Discard() {
	if e.syncer != nil {
		e.syncer.Close()
	}
	e.saver.Discard()
}
