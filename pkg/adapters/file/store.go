// Package file stores flows and their run history on the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/testflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Format selects the encoding of flow documents.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Store implements ports.FlowRepository using the local filesystem.
// Flows live in <base>/flows/<id>.<ext>, run reports in <base>/runs/<id>.json.
type Store struct {
	BasePath string
	format   Format

	// mu serializes read-modify-write cycles within the process.
	mu sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithFormat sets the flow document encoding. Defaults to JSON.
func WithFormat(f Format) Option {
	return func(s *Store) {
		s.format = f
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".testflow".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = ".testflow"
	}
	s := &Store{BasePath: basePath, format: FormatJSON}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ext() string {
	if s.format == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

func (s *Store) flowPath(flowID string) string {
	return filepath.Join(s.BasePath, "flows", flowID+s.ext())
}

func (s *Store) runsPath(flowID string) string {
	return filepath.Join(s.BasePath, "runs", flowID+".json")
}

func (s *Store) encode(v any) ([]byte, error) {
	if s.format == FormatYAML {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}

func (s *Store) decode(data []byte, v any) error {
	if s.format == FormatYAML {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func checkID(flowID string) error {
	if flowID == "" {
		return fmt.Errorf("flowID cannot be empty")
	}
	if strings.ContainsAny(flowID, `/\`) || flowID == "." || flowID == ".." {
		return fmt.Errorf("invalid flowID %q", flowID)
	}
	return nil
}

// CreateFlow writes the whole flow document.
func (s *Store) CreateFlow(ctx context.Context, flow *domain.Flow) error {
	if err := checkID(flow.ID); err != nil {
		return err
	}
	data, err := s.encode(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.flowPath(flow.ID), data)
}

// LoadFlow reads a flow document.
func (s *Store) LoadFlow(ctx context.Context, flowID string) (*domain.Flow, error) {
	if err := checkID(flowID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(flowID)
}

func (s *Store) loadLocked(flowID string) (*domain.Flow, error) {
	data, err := os.ReadFile(s.flowPath(flowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}

	var flow domain.Flow
	if err := s.decode(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow %s: %w", flowID, err)
	}
	if flow.ID == "" {
		flow.ID = flowID
	}
	return &flow, nil
}

// SaveFlow replaces the structural graph and keeps the flow metadata.
func (s *Store) SaveFlow(ctx context.Context, flowID string, graph domain.FlowGraph) error {
	if err := checkID(flowID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.loadLocked(flowID)
	if err != nil {
		return err
	}
	flow.FlowGraph = graph
	data, err := s.encode(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}
	return writeAtomic(s.flowPath(flowID), data)
}

// SaveRunReport appends a report to the flow's run history file.
func (s *Store) SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error {
	if err := checkID(flowID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	reports, err := s.reportsLocked(flowID)
	if err != nil {
		return err
	}
	reports = append(reports, *report)
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run reports: %w", err)
	}
	return writeAtomic(s.runsPath(flowID), data)
}

// ListRunReports returns the flow's reports, oldest first.
func (s *Store) ListRunReports(ctx context.Context, flowID string) ([]domain.RunReport, error) {
	if err := checkID(flowID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportsLocked(flowID)
}

func (s *Store) reportsLocked(flowID string) ([]domain.RunReport, error) {
	data, err := os.ReadFile(s.runsPath(flowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}
	var reports []domain.RunReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run history: %w", err)
	}
	return reports, nil
}

// DeleteFlow removes the flow file and its run history.
func (s *Store) DeleteFlow(ctx context.Context, flowID string) error {
	if err := checkID(flowID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{s.flowPath(flowID), s.runsPath(flowID)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

// ListFlows returns all stored flow IDs, sorted.
func (s *Store) ListFlows(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.BasePath, "flows"))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "tmp-") || filepath.Ext(name) != s.ext() {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, s.ext()))
	}
	sort.Strings(ids)
	return ids, nil
}

// writeAtomic writes to a temp file in the destination directory, fsyncs it
// and renames it over the destination.
func writeAtomic(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-"+filepath.Base(destPath)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows os.Rename fails if the destination exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
