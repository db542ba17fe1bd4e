// Package persistence keeps the stored copy of a flow's structural graph
// eventually consistent with local edits.
//
// A Saver tracks a dirty flag and debounces saves: every mutation restarts a
// fixed timer and the save runs once edits settle. Save bypasses the debounce.
// A failed save never rolls back local state; the flow stays dirty and the
// next mutation schedules another attempt.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/testflow/internal/logging"
	"github.com/aretw0/testflow/pkg/domain"
)

// DefaultDelay is the debounce window.
const DefaultDelay = time.Second

// DefaultTimeout bounds one debounced save.
const DefaultTimeout = 10 * time.Second

// GraphSaver is the storage operation the Saver drives.
type GraphSaver interface {
	SaveFlow(ctx context.Context, flowID string, graph domain.FlowGraph) error
}

// SaveError reports a failed structural save. It is non-fatal: local edits are kept.
type SaveError struct {
	FlowID string
	Err    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save flow %s: %v", e.FlowID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Saver debounces structural saves of one flow.
type Saver struct {
	flowID string
	store  GraphSaver
	source func() domain.FlowGraph

	delay   time.Duration
	timeout time.Duration
	logger  *slog.Logger
	onError func(error)
	onSaved func()

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	gen    uint64
	closed bool

	// saving serializes writes so an older graph never lands after a newer one.
	saving sync.Mutex
}

// Option configures the Saver.
type Option func(*Saver)

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(s *Saver) {
		s.delay = d
	}
}

// WithTimeout bounds each debounced save.
func WithTimeout(d time.Duration) Option {
	return func(s *Saver) {
		s.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Saver) {
		s.logger = logger
	}
}

// WithErrorHandler is called with a *SaveError when a debounced save fails.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Saver) {
		s.onError = fn
	}
}

// WithSavedHandler is called after every successful save.
func WithSavedHandler(fn func()) Option {
	return func(s *Saver) {
		s.onSaved = fn
	}
}

// NewSaver creates a saver for flowID. source returns the graph to persist.
func NewSaver(flowID string, store GraphSaver, source func() domain.FlowGraph, opts ...Option) *Saver {
	s := &Saver{
		flowID:  flowID,
		store:   store,
		source:  source,
		delay:   DefaultDelay,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkDirty records a structural mutation and restarts the debounce timer.
func (s *Saver) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.dirty = true
	s.gen++
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.flush)
		return
	}
	s.timer.Reset(s.delay)
}

// Dirty reports whether local edits are not yet saved.
func (s *Saver) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Save persists the current graph immediately, cancelling any pending debounce.
func (s *Saver) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	return s.save(ctx)
}

// Close stops the timer and flushes pending edits.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	dirty := s.dirty
	s.mu.Unlock()

	if !dirty {
		return nil
	}
	return s.save(ctx)
}

// Discard stops the timer and drops pending edits without saving them.
func (s *Saver) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.dirty = false
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Saver) flush() {
	s.mu.Lock()
	dirty := s.dirty
	s.mu.Unlock()
	if !dirty {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.save(ctx); err != nil {
		s.logger.Warn("autosave failed, local edits retained", "flow_id", s.flowID, "err", err)
		if s.onError != nil {
			s.onError(err)
		}
	}
}

func (s *Saver) save(ctx context.Context) error {
	s.saving.Lock()
	defer s.saving.Unlock()

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	graph := s.source()
	if err := s.store.SaveFlow(ctx, s.flowID, graph); err != nil {
		return &SaveError{FlowID: s.flowID, Err: err}
	}

	s.mu.Lock()
	// Edits made while the save was in flight keep the flow dirty.
	if s.gen == gen {
		s.dirty = false
	}
	s.mu.Unlock()

	s.logger.Debug("flow saved", "flow_id", s.flowID, "nodes", len(graph.Nodes), "edges", len(graph.Edges))
	if s.onSaved != nil {
		s.onSaved()
	}
	return nil
}

// IsSaveError reports whether err is a structural save failure.
func IsSaveError(err error) bool {
	var se *SaveError
	return errors.As(err, &se)
}
