package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/testflow"
	"github.com/aretw0/testflow/internal/presentation/graph"
	"github.com/aretw0/testflow/internal/presentation/tui"
	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/observability"
)

// RunOptions contains the configuration of the run command.
type RunOptions struct {
	FlowID        string
	EnvironmentID string
	// JSON prints the report as JSON instead of rendered markdown.
	JSON bool
	// Graph appends a Mermaid diagram with the run overlay.
	Graph bool
	// Color enables ANSI styling of progress and report output.
	Color bool
	Out   io.Writer
}

// Run executes one flow and prints progress and the report.
// A failed report is returned along with ErrRunFailed.
func Run(ctx context.Context, b *Backend, opts RunOptions) (*domain.RunReport, error) {
	progress := tui.NewProgress(opts.Out, opts.Color && !opts.JSON)

	hooks := observability.LogHooks(b.Logger)
	if !opts.JSON {
		hooks = observability.Combine(hooks, domain.RunHooks{
			OnEvent: func(_ context.Context, ev *domain.RunEvent) { progress.Event(ev) },
		})
	}

	editorOpts := append(b.EditorOptions(), testflow.WithRunHooks(hooks))
	ed, err := testflow.Open(ctx, b.Store, opts.FlowID, editorOpts...)
	if err != nil {
		return nil, err
	}
	defer ed.Close(context.Background())

	report, err := ed.Run(ctx, opts.EnvironmentID)
	if err != nil {
		return nil, err
	}

	if opts.JSON {
		enc := json.NewEncoder(opts.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return report, err
		}
	} else {
		render := tui.NewRenderer(opts.Color)
		out, err := render(tui.ReportMarkdown(report))
		if err != nil {
			return report, fmt.Errorf("render report: %w", err)
		}
		fmt.Fprint(opts.Out, out)
	}

	if opts.Graph {
		nodes, edges := ed.RunStates()
		fmt.Fprint(opts.Out, graph.GenerateMermaid(ed.Graph(), &graph.RunOverlay{Nodes: nodes, Edges: edges}))
	}

	if report.Status == domain.ReportFailed {
		return report, ErrRunFailed
	}
	return report, nil
}
