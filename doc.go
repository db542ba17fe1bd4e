/*
Package testflow is the editing core of a visual API test flow editor.

A flow is a directed graph of test steps (HTTP requests, assertions, conditions,
loops, scripts, delays, variable assignments and sub-collection runs) that a
remote orchestrator executes while streaming progress back. This package keeps
the graph consistent while it is edited, records undo/redo history, lays the
graph out, projects a live run onto per-node and per-edge status, and saves the
structural graph back to storage with a debounce.

# Architecture

The editor follows a Hexagonal Architecture. The core packages are free of I/O;
storage, the orchestrator transport and the node palette are ports:

  - ports.FlowStore: load flows, save structural graphs and run reports.
  - ports.Orchestrator: open the ordered event stream of a run.
  - ports.Palette: default label and config for new nodes.

Structural records (domain.Node, domain.Edge) and run state
(domain.NodeRunState, domain.EdgeRunState) are kept apart and joined by id,
so a saved payload can never carry transient run fields.

# Usage

	store := memory.NewStore(flow)
	ed, err := testflow.Open(ctx, store, flow.ID,
		testflow.WithOrchestrator(orchestrator),
		testflow.WithLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer ed.Close(ctx)

	req, _ := ed.AddNode(domain.NodeTypeHTTPRequest, domain.Position{})
	chk, _ := ed.AddNode(domain.NodeTypeAssertion, domain.Position{Y: 150})
	_, _ = ed.Connect(domain.Edge{SourceNodeID: req.ID, TargetNodeID: chk.ID})
	ed.AutoLayout()

	report, err := ed.Run(ctx, "staging")
*/
package testflow
