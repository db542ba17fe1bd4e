package domain

import (
	"context"
	"strings"
)

// EventType defines the category of an orchestrator run event.
type EventType string

const (
	EventStart         EventType = "start"
	EventNodeStart     EventType = "node_start"
	EventNodeResult    EventType = "node_result"
	EventNodeSkipped   EventType = "node_skipped"
	EventEdgeActive    EventType = "edge_active"
	EventLoopIteration EventType = "loop_iteration"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// NormalizeEventType accepts both "node_start" and "node-start" spellings,
// and the "run-" prefixed names of the run lifecycle events.
func NormalizeEventType(raw string) EventType {
	t := strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")
	switch t {
	case "run_start":
		return EventStart
	case "run_done":
		return EventDone
	case "run_error":
		return EventError
	}
	return EventType(t)
}

// Known reports whether the type is one the synchronizer handles.
func (t EventType) Known() bool {
	switch t {
	case EventStart, EventNodeStart, EventNodeResult, EventNodeSkipped,
		EventEdgeActive, EventLoopIteration, EventDone, EventError:
		return true
	}
	return false
}

// RunSummary is the aggregate carried by the done event.
type RunSummary struct {
	TotalNodes       int     `json:"total_nodes"`
	PassedCount      int     `json:"passed_count"`
	FailedCount      int     `json:"failed_count"`
	SkippedCount     int     `json:"skipped_count"`
	TotalAssertions  int     `json:"total_assertions"`
	PassedAssertions int     `json:"passed_assertions"`
	FailedAssertions int     `json:"failed_assertions"`
	TotalTimeMs      float64 `json:"total_time_ms"`
}

// RunEvent is one decoded frame of the orchestrator stream.
// Fields are populated according to Type.
type RunEvent struct {
	Type EventType `json:"type"`

	// start
	TotalNodes int    `json:"total_nodes,omitempty"`
	FlowName   string `json:"flow_name,omitempty"`

	// node_start, node_result, node_skipped, loop_iteration
	NodeID    string   `json:"node_id,omitempty"`
	NodeType  NodeType `json:"node_type,omitempty"`
	NodeLabel string   `json:"node_label,omitempty"`
	Label     string   `json:"label,omitempty"`

	// node_result
	Status              string            `json:"status,omitempty"`
	ElapsedMs           float64           `json:"elapsed_ms,omitempty"`
	ExecutionOrder      int               `json:"execution_order,omitempty"`
	StatusCode          int               `json:"status_code,omitempty"`
	AssertionResults    []AssertionResult `json:"assertion_results,omitempty"`
	BranchTaken         BranchTaken       `json:"branch_taken,omitempty"`
	Iteration           int               `json:"iteration,omitempty"`
	IterationsCompleted int               `json:"iterations_completed,omitempty"`
	Variables           map[string]any    `json:"variables,omitempty"`

	// node_skipped
	Reason string `json:"reason,omitempty"`

	// edge_active
	EdgeID string `json:"edge_id,omitempty"`

	// loop_iteration
	Total int `json:"total,omitempty"`

	// done
	Summary        *RunSummary    `json:"summary,omitempty"`
	FinalVariables map[string]any `json:"final_variables,omitempty"`

	// error and failed node_result
	Error string `json:"error,omitempty"`
}

// DisplayLabel returns the best label carried by the event.
func (e *RunEvent) DisplayLabel() string {
	if e.NodeLabel != "" {
		return e.NodeLabel
	}
	return e.Label
}

// RunHooks defines callbacks for run observability.
type RunHooks struct {
	OnRunStart     func(ctx context.Context, flowID string)
	OnEvent        func(ctx context.Context, ev *RunEvent)
	OnFrameDropped func(ctx context.Context, reason string)
	OnRunFinish    func(ctx context.Context, flowID string, report *RunReport, err error)
}
