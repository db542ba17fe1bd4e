package testflow

import _ "embed"

// Version is the library version reported by the CLI and the editor server.
//
//go:embed VERSION
var Version string
