// Package validator checks a flow graph for problems the orchestrator would
// reject or that are likely authoring mistakes.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/expr-lang/expr"
)

// Severity ranks an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding.
type Issue struct {
	Severity Severity `json:"severity"`
	NodeID   string   `json:"node_id,omitempty"`
	EdgeID   string   `json:"edge_id,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	switch {
	case i.NodeID != "":
		return fmt.Sprintf("[%s] node %s: %s", i.Severity, i.NodeID, i.Message)
	case i.EdgeID != "":
		return fmt.Sprintf("[%s] edge %s: %s", i.Severity, i.EdgeID, i.Message)
	default:
		return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
	}
}

// exprEnv mirrors the names available to condition expressions at run time.
var exprEnv = map[string]any{
	"vars":             map[string]any{},
	"status_code":      0,
	"response_body":    "",
	"response_headers": map[string]any{},
	"elapsed_ms":       0,
	"iteration":        0,
}

// Validate returns every issue found in g, errors first.
func Validate(g domain.FlowGraph) []Issue {
	var issues []Issue
	add := func(sev Severity, nodeID, edgeID, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, NodeID: nodeID, EdgeID: edgeID, Message: fmt.Sprintf(format, args...)})
	}

	byID := make(map[string]domain.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := byID[n.ID]; dup {
			add(SeverityError, n.ID, "", "duplicate node id")
			continue
		}
		byID[n.ID] = n
	}

	for _, n := range g.Nodes {
		if !n.Type.Valid() {
			add(SeverityError, n.ID, "", "unknown node type %q", n.Type)
			continue
		}
		if n.ParentID != "" {
			if p, ok := byID[n.ParentID]; !ok || p.Type != domain.NodeTypeGroup || p.ID == n.ID {
				add(SeverityError, n.ID, "", "parent %q is not a group node", n.ParentID)
			}
		}
		checkConfig(n, add)
	}

	handles := make(map[[2]string]string)
	for _, e := range g.Edges {
		src, okSrc := byID[e.SourceNodeID]
		_, okDst := byID[e.TargetNodeID]
		if !okSrc || !okDst {
			add(SeverityError, "", e.ID, "endpoint does not exist")
			continue
		}
		if allowed := src.Type.Handles(); len(allowed) > 0 {
			if !slices.Contains(allowed, e.SourceHandle) {
				add(SeverityError, "", e.ID, "handle %q is not valid for %s nodes", e.SourceHandle, src.Type)
				continue
			}
			key := [2]string{e.SourceNodeID, e.SourceHandle}
			if other, taken := handles[key]; taken {
				add(SeverityError, "", e.ID, "handle %s of %s is already used by edge %s", e.SourceHandle, e.SourceNodeID, other)
				continue
			}
			handles[key] = e.ID
		}
	}

	if cycle := findCycle(g, byID); len(cycle) > 0 {
		add(SeverityError, "", "", "cycle detected involving nodes: %s", strings.Join(cycle, ", "))
	}

	slices.SortStableFunc(issues, func(a, b Issue) int {
		if a.Severity == b.Severity {
			return 0
		}
		if a.Severity == SeverityError {
			return -1
		}
		return 1
	})
	return issues
}

func checkConfig(n domain.Node, add func(Severity, string, string, string, ...any)) {
	cfg, err := domain.DecodeConfig(n.Type, n.Config)
	if err != nil {
		add(SeverityError, n.ID, "", "invalid config: %v", err)
		return
	}
	switch c := cfg.(type) {
	case *domain.HTTPRequestConfig:
		if c.RequestID == "" && len(c.InlineRequest) == 0 {
			add(SeverityWarning, n.ID, "", "no request selected")
		}
	case *domain.CollectionConfig:
		if c.CollectionID == "" {
			add(SeverityWarning, n.ID, "", "no collection selected")
		}
	case *domain.AssertionConfig:
		if len(c.Assertions) == 0 {
			add(SeverityWarning, n.ID, "", "assertion node has no checks")
		}
	case *domain.DelayConfig:
		if c.DelayMs < 0 {
			add(SeverityError, n.ID, "", "delay_ms must not be negative")
		}
	case *domain.ConditionConfig:
		lintExpression(n.ID, "expression", c.Expression, add)
	case *domain.LoopConfig:
		switch c.Mode {
		case domain.LoopModeCount:
			if c.Count < 1 {
				add(SeverityError, n.ID, "", "loop count must be at least 1")
			}
		case domain.LoopModeCondition:
			lintExpression(n.ID, "condition", c.Condition, add)
		default:
			add(SeverityError, n.ID, "", "unknown loop mode %q", c.Mode)
		}
		if c.MaxIterations < 1 {
			add(SeverityError, n.ID, "", "max_iterations must be at least 1")
		}
	case *domain.SetVariableConfig:
		for i, a := range c.Assignments {
			if a.Key == "" {
				add(SeverityError, n.ID, "", "assignment %d has no key", i+1)
			}
		}
	}
}

// lintExpression reports empty expressions and those the expression engine cannot parse.
// Parse failures are warnings: the orchestrator may accept a richer syntax.
func lintExpression(nodeID, field, src string, add func(Severity, string, string, string, ...any)) {
	if strings.TrimSpace(src) == "" {
		add(SeverityError, nodeID, "", "%s is empty", field)
		return
	}
	if _, err := expr.Compile(src, expr.Env(exprEnv), expr.AllowUndefinedVariables()); err != nil {
		add(SeverityWarning, nodeID, "", "%s may not evaluate: %v", field, firstLine(err.Error()))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// findCycle runs Kahn's algorithm over executable nodes and returns the
// labels of nodes left unvisited, in input order.
func findCycle(g domain.FlowGraph, byID map[string]domain.Node) []string {
	indeg := make(map[string]int)
	out := make(map[string][]string)
	for _, n := range g.Nodes {
		if n.Type.Executable() {
			indeg[n.ID] += 0
		}
	}
	for _, e := range g.Edges {
		_, okSrc := indeg[e.SourceNodeID]
		_, okDst := indeg[e.TargetNodeID]
		if !okSrc || !okDst {
			continue
		}
		out[e.SourceNodeID] = append(out[e.SourceNodeID], e.TargetNodeID)
		indeg[e.TargetNodeID]++
	}

	var queue []string
	for _, n := range g.Nodes {
		if d, ok := indeg[n.ID]; ok && d == 0 {
			queue = append(queue, n.ID)
		}
	}
	visited := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, next := range out[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	var cycle []string
	for _, n := range g.Nodes {
		if _, ok := indeg[n.ID]; ok && !visited[n.ID] {
			label := n.Label
			if label == "" {
				label = n.ID
			}
			cycle = append(cycle, label)
		}
	}
	return cycle
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Severity == SeverityError })
}

// Err folds error-level issues into one error, or nil.
func Err(issues []Issue) error {
	var lines []string
	for _, i := range issues {
		if i.Severity == SeverityError {
			lines = append(lines, i.String())
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return fmt.Errorf("found %d errors:\n- %s", len(lines), strings.Join(lines, "\n- "))
}
