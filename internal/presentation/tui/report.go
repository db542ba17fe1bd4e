package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/muesli/termenv"
)

// ReportMarkdown formats a run report as markdown.
func ReportMarkdown(r *domain.RunReport) string {
	var sb strings.Builder

	name := r.FlowName
	if name == "" {
		name = r.FlowID
	}
	fmt.Fprintf(&sb, "# %s %s\n\n", statusIcon(r.Status), name)
	if r.EnvironmentID != "" {
		env := r.EnvironmentName
		if env == "" {
			env = r.EnvironmentID
		}
		fmt.Fprintf(&sb, "Environment: **%s**\n\n", env)
	}

	s := r.Summary
	fmt.Fprintf(&sb, "**%d** passed, **%d** failed, **%d** skipped of %d nodes in %gms.",
		s.PassedCount, s.FailedCount, s.SkippedCount, s.TotalNodes, s.TotalTimeMs)
	if s.TotalAssertions > 0 {
		fmt.Fprintf(&sb, " Assertions: %d/%d passed.", s.PassedAssertions, s.TotalAssertions)
	}
	sb.WriteString("\n\n")

	if len(r.Results) > 0 {
		sb.WriteString("| # | Node | Type | Status | Time | Detail |\n")
		sb.WriteString("|---|------|------|--------|------|--------|\n")
		for _, res := range r.Results {
			label := res.NodeLabel
			if label == "" {
				label = res.NodeID
			}
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %gms | %s |\n",
				res.ExecutionOrder, cell(label), res.NodeType, res.Status, res.ElapsedMs, cell(detail(res)))
		}
		sb.WriteString("\n")
	}

	var failures []string
	for _, res := range r.Results {
		for _, a := range res.AssertionResults {
			if a.Passed {
				continue
			}
			msg := fmt.Sprintf("- **%s**: expected `%v`, got `%v`", cell(a.Name), a.Expected, a.Actual)
			if a.Error != "" {
				msg += " (" + a.Error + ")"
			}
			failures = append(failures, msg)
		}
	}
	if len(failures) > 0 {
		sb.WriteString("## Failed assertions\n\n")
		sb.WriteString(strings.Join(failures, "\n"))
		sb.WriteString("\n\n")
	}

	if len(r.FinalVariables) > 0 {
		sb.WriteString("## Variables\n\n")
		keys := make([]string, 0, len(r.FinalVariables))
		for k := range r.FinalVariables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- `%s` = `%v`\n", k, r.FinalVariables[k])
		}
	}
	return sb.String()
}

func detail(res domain.RunResult) string {
	switch {
	case res.Error != "":
		return res.Error
	case res.Reason != "":
		return res.Reason
	case res.BranchTaken != domain.BranchNone:
		return "branch " + string(res.BranchTaken)
	case res.StatusCode != 0:
		return fmt.Sprintf("HTTP %d", res.StatusCode)
	}
	return ""
}

func cell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}

func statusIcon(s domain.ReportStatus) string {
	if s == domain.ReportFailed {
		return "✗"
	}
	return "✓"
}

// Progress prints one line per finished node while a run streams.
type Progress struct {
	w       io.Writer
	profile termenv.Profile
	mu      sync.Mutex
}

// NewProgress writes colored lines to w when color is true.
func NewProgress(w io.Writer, color bool) *Progress {
	p := termenv.Ascii
	if color {
		p = termenv.ColorProfile()
	}
	return &Progress{w: w, profile: p}
}

// Event is a domain.RunHooks OnEvent-compatible printer.
func (p *Progress) Event(ev *domain.RunEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	label := ev.DisplayLabel()
	if label == "" {
		label = ev.NodeID
	}
	switch ev.Type {
	case domain.EventStart:
		fmt.Fprintf(p.w, "▶ %s (%d nodes)\n", ev.FlowName, ev.TotalNodes)
	case domain.EventNodeResult:
		color, mark := "#22c55e", "✓"
		if ev.Status != "success" && ev.Status != "passed" && ev.Status != "ok" {
			color, mark = "#ef4444", "✗"
		}
		line := fmt.Sprintf("  %s %s %gms", mark, label, ev.ElapsedMs)
		if ev.Error != "" {
			line += " " + ev.Error
		}
		fmt.Fprintln(p.w, termenv.String(line).Foreground(p.profile.Color(color)))
	case domain.EventNodeSkipped:
		fmt.Fprintln(p.w, termenv.String(fmt.Sprintf("  - %s skipped", label)).Foreground(p.profile.Color("#9ca3af")))
	case domain.EventLoopIteration:
		fmt.Fprintf(p.w, "  ↻ %s iteration %d/%d\n", label, ev.Iteration, ev.Total)
	case domain.EventError:
		fmt.Fprintln(p.w, termenv.String("  ! "+ev.Error).Foreground(p.profile.Color("#ef4444")))
	}
}
