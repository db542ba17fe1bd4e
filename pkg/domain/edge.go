package domain

// Source handle discriminators for branching node types.
const (
	HandleTrue  = "source-true"
	HandleFalse = "source-false"
	HandleLoop  = "source-loop"
	HandleDone  = "source-done"
)

// Edge is a directed connection between two nodes.
type Edge struct {
	ID           string `json:"id" yaml:"id" mapstructure:"id"`
	SourceNodeID string `json:"source_node_id" yaml:"source" mapstructure:"source_node_id"`
	TargetNodeID string `json:"target_node_id" yaml:"target" mapstructure:"target_node_id"`
	SourceHandle string `json:"source_handle,omitempty" yaml:"source_handle,omitempty" mapstructure:"source_handle"`
	TargetHandle string `json:"target_handle,omitempty" yaml:"target_handle,omitempty" mapstructure:"target_handle"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
}

// EdgePatch is the mutable subset of an Edge. Endpoints are immutable after creation.
type EdgePatch struct {
	Label        *string `json:"label,omitempty"`
	TargetHandle *string `json:"target_handle,omitempty"`
}

// BranchHandle maps a branchTaken value ("true"/"false") to the source handle it selects.
func BranchHandle(taken BranchTaken) (selected, other string, ok bool) {
	switch taken {
	case BranchTrue:
		return HandleTrue, HandleFalse, true
	case BranchFalse:
		return HandleFalse, HandleTrue, true
	default:
		return "", "", false
	}
}
