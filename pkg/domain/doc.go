/*
Package domain contains the core domain models of the test flow editor.

It defines the structural entities of a flow graph (Nodes, Edges, Flows) and,
kept apart from them, the transient run state that is projected onto those
entities while a run is streaming. This package is free of I/O and persistence
concerns, following Hexagonal Architecture principles.

# Key Entities

  - Node: a typed step in the flow (request, assertion, condition, loop...).
  - Edge: a directed connection, optionally tagged with a branch handle.
  - FlowGraph: the persisted structural payload (nodes, edges, viewport).
  - NodeRunState / EdgeRunState: transient per-run status, never persisted.
  - RunEvent / RunReport: the orchestrator event stream and its final report.
*/
package domain
