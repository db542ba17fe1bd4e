package domain

import "time"

// ReportStatus is the overall outcome of a run.
type ReportStatus string

const (
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// RunResult is one entry of a run report.
type RunResult struct {
	NodeID           string            `json:"node_id"`
	NodeType         NodeType          `json:"node_type,omitempty"`
	NodeLabel        string            `json:"node_label,omitempty"`
	Status           RunStatus         `json:"status"`
	ElapsedMs        float64           `json:"elapsed_ms"`
	ExecutionOrder   int               `json:"execution_order"`
	StatusCode       int               `json:"status_code,omitempty"`
	AssertionResults []AssertionResult `json:"assertion_results,omitempty"`
	BranchTaken      BranchTaken       `json:"branch_taken,omitempty"`
	Iteration        int               `json:"iteration,omitempty"`
	Error            string            `json:"error,omitempty"`
	Reason           string            `json:"reason,omitempty"`
}

// RunReport is the completed record of one run.
type RunReport struct {
	FlowID          string         `json:"flow_id"`
	FlowName        string         `json:"flow_name,omitempty"`
	EnvironmentID   string         `json:"environment_id,omitempty"`
	EnvironmentName string         `json:"environment_name,omitempty"`
	Status          ReportStatus   `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Summary         RunSummary     `json:"summary"`
	FinalVariables  map[string]any `json:"final_variables,omitempty"`
	Results         []RunResult    `json:"results"`
}
