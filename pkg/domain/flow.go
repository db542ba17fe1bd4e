package domain

// Viewport is the pan/zoom snapshot of the canvas.
type Viewport struct {
	X    float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y    float64 `json:"y" yaml:"y" mapstructure:"y"`
	Zoom float64 `json:"zoom" yaml:"zoom" mapstructure:"zoom"`
}

// FlowGraph is the structural payload exchanged with storage.
// It carries no run state by construction.
type FlowGraph struct {
	Nodes    []Node   `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Edges    []Edge   `json:"edges" yaml:"edges" mapstructure:"edges"`
	Viewport Viewport `json:"viewport" yaml:"viewport" mapstructure:"viewport"`
}

// Clone returns a deep copy of the graph.
func (g FlowGraph) Clone() FlowGraph {
	out := FlowGraph{
		Nodes:    make([]Node, len(g.Nodes)),
		Edges:    make([]Edge, len(g.Edges)),
		Viewport: g.Viewport,
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, g.Edges)
	return out
}

// Flow is a persisted test scenario.
type Flow struct {
	ID          string            `json:"id" yaml:"id" mapstructure:"id"`
	Name        string            `json:"name" yaml:"name" mapstructure:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Variables   map[string]string `json:"variables,omitempty" yaml:"variables,omitempty" mapstructure:"variables"`
	FlowGraph   `yaml:",inline" mapstructure:",squash"`
}

// Clone returns a deep copy of the flow.
func (f Flow) Clone() Flow {
	out := f
	out.FlowGraph = f.FlowGraph.Clone()
	if f.Variables != nil {
		out.Variables = make(map[string]string, len(f.Variables))
		for k, v := range f.Variables {
			out.Variables[k] = v
		}
	}
	return out
}
