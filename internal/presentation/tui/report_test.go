package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/testflow/internal/presentation/tui"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func sampleReport() *domain.RunReport {
	return &domain.RunReport{
		FlowID:        "flow-1",
		FlowName:      "Login smoke",
		EnvironmentID: "staging",
		Status:        domain.ReportFailed,
		Summary:       domain.RunSummary{TotalNodes: 3, PassedCount: 1, FailedCount: 1, SkippedCount: 1, TotalAssertions: 2, PassedAssertions: 1, TotalTimeMs: 152.41},
		Results: []domain.RunResult{
			{NodeID: "A", NodeLabel: "Login", NodeType: domain.NodeTypeHTTPRequest, Status: domain.RunStatusSuccess, ExecutionOrder: 1, StatusCode: 200, ElapsedMs: 152.37},
			{NodeID: "B", NodeLabel: "Check | body", NodeType: domain.NodeTypeAssertion, Status: domain.RunStatusError, ExecutionOrder: 2,
				AssertionResults: []domain.AssertionResult{
					{Name: "status", Passed: true},
					{Name: "token", Passed: false, Expected: "abc", Actual: "xyz"},
				}},
			{NodeID: "C", Status: domain.RunStatusSkipped, ExecutionOrder: 3, Reason: "branch not taken"},
		},
		FinalVariables: map[string]any{"token": "xyz"},
	}
}

func TestReportMarkdown(t *testing.T) {
	md := tui.ReportMarkdown(sampleReport())

	assert.Contains(t, md, "# ✗ Login smoke")
	assert.Contains(t, md, "Environment: **staging**")
	assert.Contains(t, md, "**1** passed, **1** failed, **1** skipped of 3 nodes in 152.41ms.")
	assert.Contains(t, md, "| 1 | Login | http_request | success | 152.37ms | HTTP 200 |")
	assert.Contains(t, md, `Check \| body`)
	assert.Contains(t, md, "branch not taken")
	assert.Contains(t, md, "- **token**: expected `abc`, got `xyz`")
	assert.NotContains(t, md, "**status**")
	assert.Contains(t, md, "- `token` = `xyz`")
}

func TestRenderer_PlainOutput(t *testing.T) {
	render := tui.NewRenderer(false)
	out, err := render(tui.ReportMarkdown(sampleReport()))
	assert.NoError(t, err)
	assert.Contains(t, out, "Login smoke")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := tui.NewProgress(&buf, false)

	p.Event(&domain.RunEvent{Type: domain.EventStart, FlowName: "Smoke", TotalNodes: 2})
	p.Event(&domain.RunEvent{Type: domain.EventNodeResult, NodeID: "A", Label: "Login", Status: "success", ElapsedMs: 5.25})
	p.Event(&domain.RunEvent{Type: domain.EventNodeResult, NodeID: "B", Status: "error", Error: "boom"})
	p.Event(&domain.RunEvent{Type: domain.EventNodeSkipped, NodeID: "C"})

	out := buf.String()
	assert.Contains(t, out, "▶ Smoke (2 nodes)")
	assert.Contains(t, out, "✓ Login 5.25ms")
	assert.Contains(t, out, "✗ B 0ms boom")
	assert.Contains(t, out, "- C skipped")
}
