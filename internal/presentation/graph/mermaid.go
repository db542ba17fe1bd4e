package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/testflow/pkg/domain"
)

// RunOverlay carries run state to paint onto the chart.
type RunOverlay struct {
	Nodes map[string]domain.NodeRunState
	Edges map[string]domain.EdgeRunState
}

// OverlayFromReport rebuilds node statuses from a stored run report.
// Later results for the same node win, so loop bodies show their last iteration.
func OverlayFromReport(r *domain.RunReport) *RunOverlay {
	o := &RunOverlay{Nodes: make(map[string]domain.NodeRunState, len(r.Results))}
	for _, res := range r.Results {
		o.Nodes[res.NodeID] = domain.NodeRunState{
			Status:      res.Status,
			StatusCode:  res.StatusCode,
			ElapsedMs:   res.ElapsedMs,
			BranchTaken: res.BranchTaken,
			Error:       res.Error,
			Reason:      res.Reason,
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart for a flow graph.
// Node shapes follow the node type:
// - Condition: {Rhombus}
// - Assertion: {{Hexagon}}
// - Loop: [[Subroutine]]
// - Delay: ([Stadium])
// - Script and Set Variable: [/Parallelogram/]
// - Default: [Rectangle]
// Group nodes become subgraphs holding their children. Branch edges are
// labelled with their handle. With an overlay, nodes get a class per run
// status and traversed edges are coloured.
func GenerateMermaid(g domain.FlowGraph, overlay *RunOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	children := make(map[string][]domain.Node)
	groups := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Type == domain.NodeTypeGroup {
			groups[n.ID] = true
		}
	}
	for _, n := range g.Nodes {
		if n.ParentID != "" && groups[n.ParentID] {
			children[n.ParentID] = append(children[n.ParentID], n)
		}
	}

	var writeNode func(n domain.Node, indent string)
	writeNode = func(n domain.Node, indent string) {
		if n.Type == domain.NodeTypeGroup {
			fmt.Fprintf(&sb, "%ssubgraph %s[\"%s\"]\n", indent, sanitizeMermaidID(n.ID), escapeLabel(displayLabel(n)))
			for _, c := range children[n.ID] {
				writeNode(c, indent+"    ")
			}
			fmt.Fprintf(&sb, "%send\n", indent)
			return
		}
		opener, closer := shape(n.Type)
		fmt.Fprintf(&sb, "%s%s%s\"%s\"%s\n", indent, sanitizeMermaidID(n.ID), opener, escapeLabel(displayLabel(n)), closer)
	}
	for _, n := range g.Nodes {
		if n.ParentID != "" && groups[n.ParentID] {
			continue
		}
		writeNode(n, "    ")
	}

	for _, e := range g.Edges {
		arrow := "-->"
		label := e.Label
		if label == "" {
			label = handleLabel(e.SourceHandle)
		}
		if label != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(label))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.SourceNodeID), arrow, sanitizeMermaidID(e.TargetNodeID))
	}

	if overlay != nil {
		writeOverlay(&sb, g, overlay)
	}
	return sb.String()
}

func writeOverlay(sb *strings.Builder, g domain.FlowGraph, overlay *RunOverlay) {
	sb.WriteString("\n    %% Run Overlay\n")
	// Black text keeps contrast on both light and dark themes.
	sb.WriteString("    classDef running fill:#fff9c4,stroke:#fbc02d,stroke-width:3px,color:#000;\n")
	sb.WriteString("    classDef success fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef error fill:#ffebee,stroke:#c62828,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef skipped fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4,color:#000;\n")

	for _, n := range g.Nodes {
		st, ok := overlay.Nodes[n.ID]
		if !ok || st.Status == domain.RunStatusNone {
			continue
		}
		fmt.Fprintf(sb, "    class %s %s;\n", sanitizeMermaidID(n.ID), st.Status)
	}

	for i, e := range g.Edges {
		st, ok := overlay.Edges[e.ID]
		if !ok {
			continue
		}
		switch {
		case st.IsActive || st.Status == domain.RunStatusSuccess:
			fmt.Fprintf(sb, "    linkStyle %d stroke:#2e7d32,stroke-width:3px;\n", i)
		case st.Status == domain.RunStatusSkipped:
			fmt.Fprintf(sb, "    linkStyle %d stroke:#9e9e9e,stroke-dasharray:4;\n", i)
		}
	}
}

func shape(t domain.NodeType) (string, string) {
	switch t {
	case domain.NodeTypeCondition:
		return "{", "}"
	case domain.NodeTypeAssertion:
		return "{{", "}}"
	case domain.NodeTypeLoop:
		return "[[", "]]"
	case domain.NodeTypeDelay:
		return "([", "])"
	case domain.NodeTypeScript, domain.NodeTypeSetVariable:
		return "[/", "/]"
	}
	return "[", "]"
}

func handleLabel(h string) string {
	switch h {
	case domain.HandleTrue:
		return "true"
	case domain.HandleFalse:
		return "false"
	case domain.HandleLoop:
		return "loop"
	case domain.HandleDone:
		return "done"
	}
	return ""
}

func displayLabel(n domain.Node) string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
