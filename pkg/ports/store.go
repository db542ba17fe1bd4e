package ports

import (
	"context"

	"github.com/aretw0/testflow/pkg/domain"
)

// FlowStore defines the storage collaborator of the editor.
type FlowStore interface {
	// LoadFlow retrieves a flow by ID.
	// Returns domain.ErrFlowNotFound if the flow does not exist.
	LoadFlow(ctx context.Context, flowID string) (*domain.Flow, error)

	// SaveFlow persists the structural graph of an existing flow.
	// Returns domain.ErrFlowNotFound if the flow does not exist.
	SaveFlow(ctx context.Context, flowID string, graph domain.FlowGraph) error

	// SaveRunReport appends a completed run report to the flow's run history.
	SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error
}

// FlowRepository extends FlowStore with whole-flow management used by tooling.
type FlowRepository interface {
	FlowStore

	// CreateFlow stores a new flow or replaces an existing one.
	CreateFlow(ctx context.Context, flow *domain.Flow) error

	// DeleteFlow removes a flow and its run history.
	DeleteFlow(ctx context.Context, flowID string) error

	// ListFlows returns the IDs of all stored flows.
	ListFlows(ctx context.Context) ([]string, error)

	// ListRunReports returns the flow's run reports, oldest first.
	ListRunReports(ctx context.Context, flowID string) ([]domain.RunReport, error)
}
