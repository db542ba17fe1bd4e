/*
Package ports defines the driven ports (interfaces) of the flow editor.

These interfaces decouple the editing core from external implementations, allowing
the editor to work with various storage backends, orchestrator transports and
node palettes.

# Key Interfaces

  - FlowStore: loads flows, persists structural graph changes and stores run reports.
  - Orchestrator: opens the ordered event stream of a run.
  - Palette: supplies default labels and configs for new nodes.
  - DistributedLocker: guards the one-active-run-per-flow rule across replicas.
*/
package ports
