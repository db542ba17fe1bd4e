package runsync

import (
	"math"
	"sort"
	"time"

	"github.com/aretw0/testflow/pkg/domain"
)

// accumulator collects node_result and node_skipped events of one run.
type accumulator struct {
	flowID          string
	environmentID   string
	environmentName string
	flowName        string
	totalNodes    int
	startedAt     time.Time

	counter int
	results []domain.RunResult
}

func newAccumulator(flowID, environmentID string, now time.Time) *accumulator {
	return &accumulator{flowID: flowID, environmentID: environmentID, startedAt: now}
}

func (a *accumulator) start(ev *domain.RunEvent) {
	a.flowName = ev.FlowName
	a.totalNodes = ev.TotalNodes
}

// record appends a result stamped with the local arrival counter.
func (a *accumulator) record(ev *domain.RunEvent, status domain.RunStatus) {
	a.counter++
	a.results = append(a.results, domain.RunResult{
		NodeID:           ev.NodeID,
		NodeType:         ev.NodeType,
		NodeLabel:        ev.DisplayLabel(),
		Status:           status,
		ElapsedMs:        ev.ElapsedMs,
		ExecutionOrder:   a.counter,
		StatusCode:       ev.StatusCode,
		AssertionResults: ev.AssertionResults,
		BranchTaken:      ev.BranchTaken,
		Iteration:        ev.Iteration,
		Error:            ev.Error,
		Reason:           ev.Reason,
	})
}

// finish assembles the report from the done event.
func (a *accumulator) finish(done *domain.RunEvent, now time.Time) *domain.RunReport {
	results := make([]domain.RunResult, len(a.results))
	copy(results, a.results)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ExecutionOrder < results[j].ExecutionOrder
	})

	summary := a.summarize()
	if done.Summary != nil {
		summary = *done.Summary
	}
	if summary.TotalNodes == 0 {
		summary.TotalNodes = a.totalNodes
	}

	status := domain.ReportCompleted
	if summary.FailedCount > 0 {
		status = domain.ReportFailed
	}

	return &domain.RunReport{
		FlowID:          a.flowID,
		FlowName:        a.flowName,
		EnvironmentID:   a.environmentID,
		EnvironmentName: a.environmentName,
		Status:          status,
		StartedAt:       a.startedAt,
		FinishedAt:      now,
		Summary:         summary,
		FinalVariables:  done.FinalVariables,
		Results:         results,
	}
}

// summarize derives counts from the recorded results when the done event has none.
func (a *accumulator) summarize() domain.RunSummary {
	var s domain.RunSummary
	for _, r := range a.results {
		switch r.Status {
		case domain.RunStatusSuccess:
			s.PassedCount++
		case domain.RunStatusSkipped:
			s.SkippedCount++
		default:
			s.FailedCount++
		}
		s.TotalTimeMs += r.ElapsedMs
		for _, ar := range r.AssertionResults {
			s.TotalAssertions++
			if ar.Passed {
				s.PassedAssertions++
			} else {
				s.FailedAssertions++
			}
		}
	}
	s.TotalNodes = a.totalNodes
	s.TotalTimeMs = math.Round(s.TotalTimeMs*100) / 100
	return s
}
