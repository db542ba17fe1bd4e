package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/testflow/pkg/domain"
)

// Store implements ports.FlowRepository in memory.
// Safe for concurrent use.
type Store struct {
	flows   map[string]domain.Flow
	reports map[string][]domain.RunReport
	mu      sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore(flows ...*domain.Flow) *Store {
	s := &Store{
		flows:   make(map[string]domain.Flow),
		reports: make(map[string][]domain.RunReport),
	}
	for _, f := range flows {
		s.flows[f.ID] = f.Clone()
	}
	return s
}

// CreateFlow stores a copy of the flow.
func (s *Store) CreateFlow(ctx context.Context, flow *domain.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.ID] = flow.Clone()
	return nil
}

// LoadFlow returns a copy so callers can't mutate stored data by pointer.
func (s *Store) LoadFlow(ctx context.Context, flowID string) (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flows[flowID]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	out := f.Clone()
	return &out, nil
}

// SaveFlow replaces the structural graph of an existing flow.
func (s *Store) SaveFlow(ctx context.Context, flowID string, graph domain.FlowGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flows[flowID]
	if !ok {
		return domain.ErrFlowNotFound
	}
	f.FlowGraph = graph.Clone()
	s.flows[flowID] = f
	return nil
}

// SaveRunReport appends a report.
func (s *Store) SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *report
	r.Results = slices.Clone(report.Results)
	s.reports[flowID] = append(s.reports[flowID], r)
	return nil
}

// ListRunReports returns the reports of a flow, oldest first.
func (s *Store) ListRunReports(ctx context.Context, flowID string) ([]domain.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.reports[flowID]), nil
}

// DeleteFlow removes the flow and its reports.
func (s *Store) DeleteFlow(ctx context.Context, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, flowID)
	delete(s.reports, flowID)
	return nil
}

// ListFlows returns stored flow ids, sorted.
func (s *Store) ListFlows(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.flows))
	for id := range s.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
