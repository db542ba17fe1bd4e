package domain

import (
	"errors"
	"fmt"
)

// ErrFlowNotFound is returned when a flow ID cannot be found in the store.
var ErrFlowNotFound = errors.New("flow not found")

// ErrNodeNotFound is returned when an operation references an unknown node.
var ErrNodeNotFound = errors.New("node not found")

// ErrEdgeNotFound is returned when an operation references an unknown edge.
var ErrEdgeNotFound = errors.New("edge not found")

// ErrDuplicateID is returned when an inserted entity reuses an existing ID.
var ErrDuplicateID = errors.New("duplicate id")

// ErrMissingEndpoint is returned when an edge references a node that does not exist.
var ErrMissingEndpoint = errors.New("edge endpoint does not exist")

// ErrHandleOccupied is returned when a branching node already has an edge on the requested handle.
var ErrHandleOccupied = errors.New("source handle already connected")

// ErrInvalidHandle is returned when a source handle is not valid for the source node type.
var ErrInvalidHandle = errors.New("invalid source handle")

// ErrInvalidParent is returned when a parent reference does not point at a group node.
var ErrInvalidParent = errors.New("parent must be an existing group node")

// ErrUnknownNodeType is returned for node types the editor does not know.
var ErrUnknownNodeType = errors.New("unknown node type")

// IsGraphError reports whether err is a rejected structural edit: a duplicate
// id, a missing endpoint, an invalid or occupied handle, a bad parent or an
// unknown node type.
func IsGraphError(err error) bool {
	for _, target := range []error{
		ErrDuplicateID, ErrMissingEndpoint, ErrHandleOccupied,
		ErrInvalidHandle, ErrInvalidParent, ErrUnknownNodeType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrRunInProgress is returned when a run is started while another is streaming.
var ErrRunInProgress = errors.New("run already in progress")

// ErrStreamClosed is returned when the event stream ends before a done event.
var ErrStreamClosed = errors.New("event stream closed before completion")

// RunError is a run-level failure reported by the orchestrator through an error event.
type RunError struct {
	FlowID  string
	Message string
}

func (e *RunError) Error() string {
	if e.FlowID == "" {
		return fmt.Sprintf("run failed: %s", e.Message)
	}
	return fmt.Sprintf("run of flow %q failed: %s", e.FlowID, e.Message)
}
