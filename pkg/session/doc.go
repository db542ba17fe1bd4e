/*
Package session serializes edits of stored flows.

Tools that change a flow outside an interactive editor (the REST server, the
MCP server, the CLI) go through a Manager so concurrent writes to the same
flow are applied one at a time, locally through a reference-counted mutex
and across replicas through an optional distributed lock.
*/
package session
