package domain

// NodeType identifies the behaviour of a step in the flow.
type NodeType string

const (
	NodeTypeHTTPRequest NodeType = "http_request"
	NodeTypeCollection  NodeType = "collection"
	NodeTypeAssertion   NodeType = "assertion"
	NodeTypeScript      NodeType = "script"
	NodeTypeDelay       NodeType = "delay"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeLoop        NodeType = "loop"
	NodeTypeSetVariable NodeType = "set_variable"
	// NodeTypeGroup is a visual container. It has no execution semantics.
	NodeTypeGroup NodeType = "group"
)

// NodeTypes lists every known node type in palette order.
var NodeTypes = []NodeType{
	NodeTypeHTTPRequest,
	NodeTypeCollection,
	NodeTypeAssertion,
	NodeTypeScript,
	NodeTypeDelay,
	NodeTypeCondition,
	NodeTypeLoop,
	NodeTypeSetVariable,
	NodeTypeGroup,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Executable reports whether nodes of this type take part in a run.
func (t NodeType) Executable() bool {
	return t != NodeTypeGroup
}

// Branching reports whether the type emits edges on named handles.
func (t NodeType) Branching() bool {
	return len(t.Handles()) > 0
}

// Handles returns the source handles a branching type emits on.
// Non-branching types return nil and use the unlabeled default handle.
func (t NodeType) Handles() []string {
	switch t {
	case NodeTypeCondition, NodeTypeAssertion:
		return []string{HandleTrue, HandleFalse}
	case NodeTypeLoop:
		return []string{HandleLoop, HandleDone}
	default:
		return nil
	}
}

// Position is a point in canvas units.
type Position struct {
	X float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y float64 `json:"y" yaml:"y" mapstructure:"y"`
}

// Node is the structural record of a step. Run status lives in NodeRunState,
// so serializing a Node never leaks transient fields.
type Node struct {
	ID       string         `json:"id" yaml:"id" mapstructure:"id"`
	Type     NodeType       `json:"type" yaml:"type" mapstructure:"type"`
	Label    string         `json:"label" yaml:"label" mapstructure:"label"`
	Position Position       `json:"position" yaml:"position" mapstructure:"position"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`

	// ParentID references the group node this node is nested in.
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id,omitempty" mapstructure:"parent_id"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Config = CloneConfig(n.Config)
	return n
}

// NodePatch is a shallow merge applied by UpdateNode. Nil fields are left untouched.
// Config keys are merged one level deep; a nil value deletes the key.
type NodePatch struct {
	Label    *string        `json:"label,omitempty"`
	Position *Position      `json:"position,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	ParentID *string        `json:"parent_id,omitempty"`
}

// CloneConfig deep-copies a config map, including nested maps and slices.
func CloneConfig(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneConfig(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = CloneConfig(item)
		}
		return out
	default:
		return val
	}
}
