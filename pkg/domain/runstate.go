package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RunStatus is the transient execution status of a node or edge.
type RunStatus string

const (
	RunStatusNone    RunStatus = ""
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
	RunStatusSkipped RunStatus = "skipped"
)

// BranchTaken records which side of a condition or assertion was followed.
type BranchTaken string

const (
	BranchNone  BranchTaken = ""
	BranchTrue  BranchTaken = "true"
	BranchFalse BranchTaken = "false"
)

// UnmarshalJSON accepts both the string and the boolean encoding.
func (b *BranchTaken) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", `"true"`:
		*b = BranchTrue
	case "false", `"false"`:
		*b = BranchFalse
	case "null", `""`:
		*b = BranchNone
	default:
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("branch_taken: %w", err)
		}
		return fmt.Errorf("branch_taken: unexpected value %q", raw)
	}
	return nil
}

// AssertionResult is the outcome of one assertion check.
type AssertionResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Actual   string `json:"actual,omitempty"`
	Expected string `json:"expected,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UnmarshalJSON accepts actual and expected values of any JSON type.
// Orchestrators report numeric expectations and null actuals; both are kept
// as their textual form.
func (a *AssertionResult) UnmarshalJSON(data []byte) error {
	type plain AssertionResult
	var raw struct {
		plain
		Actual   json.RawMessage `json:"actual"`
		Expected json.RawMessage `json:"expected"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = AssertionResult(raw.plain)
	a.Actual = scalarText(raw.Actual)
	a.Expected = scalarText(raw.Expected)
	return nil
}

func scalarText(data json.RawMessage) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}

// NodeRunState is the per-run projection of events onto a node.
// The zero value means "not run".
type NodeRunState struct {
	Status              RunStatus         `json:"status,omitempty"`
	ElapsedMs           float64           `json:"elapsed_ms,omitempty"`
	StatusCode          int               `json:"status_code,omitempty"`
	AssertionResults    []AssertionResult `json:"assertion_results,omitempty"`
	BranchTaken         BranchTaken       `json:"branch_taken,omitempty"`
	IterationsCompleted int               `json:"iterations_completed,omitempty"`
	Iteration           int               `json:"iteration,omitempty"`
	IterationsTotal     int               `json:"iterations_total,omitempty"`
	Error               string            `json:"error,omitempty"`
	Reason              string            `json:"reason,omitempty"`
}

// IsZero reports whether no run status has been recorded.
func (s NodeRunState) IsZero() bool {
	return s.Status == RunStatusNone
}

// EdgeRunState is the per-run projection of events onto an edge.
type EdgeRunState struct {
	Status   RunStatus `json:"status,omitempty"`
	IsActive bool      `json:"is_active,omitempty"`
}
