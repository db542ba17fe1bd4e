// Package loam stores flows as human-editable Loam documents: the graph is
// the frontmatter and the flow description is the body.
package loam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/aretw0/testflow/pkg/domain"
)

const (
	flowsDir = "flows"
	runsDir  = "runs"
)

// Store implements ports.FlowStore on top of a Loam repository.
type Store struct {
	Flows *loam.TypedRepository[FlowDocument]
	Runs  *loam.TypedRepository[RunHistory]

	// mu serializes read-modify-write cycles within the process.
	mu sync.Mutex
}

// New creates a store over an initialized repository.
func New(repo core.Repository) *Store {
	return &Store{
		Flows: loam.NewTypedRepository[FlowDocument](repo),
		Runs:  loam.NewTypedRepository[RunHistory](repo),
	}
}

// Open initializes a Loam repository at dir without versioning.
func Open(dir string) (*Store, error) {
	repo, err := loam.Init(dir, loam.WithVersioning(false))
	if err != nil {
		return nil, fmt.Errorf("failed to init loam repository at %s: %w", dir, err)
	}
	return New(repo), nil
}

func flowDocID(flowID string) string { return path.Join(flowsDir, flowID) }
func runsDocID(flowID string) string { return path.Join(runsDir, flowID) }

// notFound maps a Loam lookup failure to the domain sentinel.
func notFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || strings.Contains(strings.ToLower(err.Error()), "not found")
}

// CreateFlow writes the whole flow document.
func (s *Store) CreateFlow(ctx context.Context, flow *domain.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, flow)
}

func (s *Store) saveLocked(ctx context.Context, flow *domain.Flow) error {
	err := s.Flows.Save(ctx, &loam.DocumentModel[FlowDocument]{
		ID:      flowDocID(flow.ID),
		Content: flow.Description,
		Data:    toDocument(flow),
	})
	if err != nil {
		return fmt.Errorf("loam save failed for %s: %w", flow.ID, err)
	}
	return nil
}

// LoadFlow reads a flow document.
func (s *Store) LoadFlow(ctx context.Context, flowID string) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, flowID)
}

func (s *Store) loadLocked(ctx context.Context, flowID string) (*domain.Flow, error) {
	doc, err := s.Flows.Get(ctx, flowDocID(flowID))
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
		}
		return nil, fmt.Errorf("loam get failed for %s: %w", flowID, err)
	}
	return fromDocument(flowID, strings.TrimSpace(doc.Content), doc.Data), nil
}

// SaveFlow replaces the graph and keeps name, variables and description.
func (s *Store) SaveFlow(ctx context.Context, flowID string, graph domain.FlowGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.loadLocked(ctx, flowID)
	if err != nil {
		return err
	}
	flow.FlowGraph = graph
	return s.saveLocked(ctx, flow)
}

// SaveRunReport appends a report to the flow's run history document.
func (s *Store) SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports, err := s.reportsLocked(ctx, flowID)
	if err != nil {
		return err
	}
	reports = append(reports, *report)
	body, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run reports: %w", err)
	}
	err = s.Runs.Save(ctx, &loam.DocumentModel[RunHistory]{
		ID:      runsDocID(flowID),
		Content: string(body),
		Data:    RunHistory{FlowID: flowID, Count: len(reports)},
	})
	if err != nil {
		return fmt.Errorf("loam save failed for run history of %s: %w", flowID, err)
	}
	return nil
}

// ListRunReports returns the flow's reports, oldest first.
func (s *Store) ListRunReports(ctx context.Context, flowID string) ([]domain.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportsLocked(ctx, flowID)
}

func (s *Store) reportsLocked(ctx context.Context, flowID string) ([]domain.RunReport, error) {
	doc, err := s.Runs.Get(ctx, runsDocID(flowID))
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loam get failed for run history of %s: %w", flowID, err)
	}
	body := strings.TrimSpace(doc.Content)
	if body == "" {
		return nil, nil
	}
	var reports []domain.RunReport
	if err := json.Unmarshal([]byte(body), &reports); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run history of %s: %w", flowID, err)
	}
	return reports, nil
}

// ListFlows returns the IDs of the flow documents.
func (s *Store) ListFlows(ctx context.Context) ([]string, error) {
	docs, err := s.Flows.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}
	var ids []string
	for _, doc := range docs {
		id := strings.TrimSuffix(doc.ID, path.Ext(doc.ID))
		if !strings.HasPrefix(id, flowsDir+"/") {
			continue
		}
		ids = append(ids, strings.TrimPrefix(id, flowsDir+"/"))
	}
	return ids, nil
}
