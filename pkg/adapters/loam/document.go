package loam

import "github.com/aretw0/testflow/pkg/domain"

// FlowDocument is the frontmatter of a flow document. Keys are identical in
// every encoding so a hand-edited file decodes the same way Loam wrote it.
type FlowDocument struct {
	ID        string            `json:"id" yaml:"id" mapstructure:"id"`
	Name      string            `json:"name" yaml:"name" mapstructure:"name"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty" mapstructure:"variables"`
	Nodes     []NodeDocument    `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Edges     []EdgeDocument    `json:"edges" yaml:"edges" mapstructure:"edges"`
	Viewport  ViewportDocument  `json:"viewport" yaml:"viewport" mapstructure:"viewport"`
}

type NodeDocument struct {
	ID       string         `json:"id" yaml:"id" mapstructure:"id"`
	Type     string         `json:"type" yaml:"type" mapstructure:"type"`
	Label    string         `json:"label" yaml:"label" mapstructure:"label"`
	X        float64        `json:"x" yaml:"x" mapstructure:"x"`
	Y        float64        `json:"y" yaml:"y" mapstructure:"y"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`
	ParentID string         `json:"parent_id,omitempty" yaml:"parent_id,omitempty" mapstructure:"parent_id"`
}

type EdgeDocument struct {
	ID           string `json:"id" yaml:"id" mapstructure:"id"`
	Source       string `json:"source" yaml:"source" mapstructure:"source"`
	Target       string `json:"target" yaml:"target" mapstructure:"target"`
	SourceHandle string `json:"source_handle,omitempty" yaml:"source_handle,omitempty" mapstructure:"source_handle"`
	TargetHandle string `json:"target_handle,omitempty" yaml:"target_handle,omitempty" mapstructure:"target_handle"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`
}

type ViewportDocument struct {
	X    float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y    float64 `json:"y" yaml:"y" mapstructure:"y"`
	Zoom float64 `json:"zoom" yaml:"zoom" mapstructure:"zoom"`
}

// RunHistory is the frontmatter of a run history document. The reports
// themselves are the JSON body.
type RunHistory struct {
	FlowID string `json:"flow_id" yaml:"flow_id" mapstructure:"flow_id"`
	Count  int    `json:"count" yaml:"count" mapstructure:"count"`
}

func toDocument(f *domain.Flow) FlowDocument {
	doc := FlowDocument{
		ID:        f.ID,
		Name:      f.Name,
		Variables: f.Variables,
		Nodes:     make([]NodeDocument, 0, len(f.Nodes)),
		Edges:     make([]EdgeDocument, 0, len(f.Edges)),
		Viewport:  ViewportDocument(f.Viewport),
	}
	for _, n := range f.Nodes {
		doc.Nodes = append(doc.Nodes, NodeDocument{
			ID: n.ID, Type: string(n.Type), Label: n.Label,
			X: n.Position.X, Y: n.Position.Y,
			Config: n.Config, ParentID: n.ParentID,
		})
	}
	for _, e := range f.Edges {
		doc.Edges = append(doc.Edges, EdgeDocument{
			ID: e.ID, Source: e.SourceNodeID, Target: e.TargetNodeID,
			SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle, Label: e.Label,
		})
	}
	return doc
}

func fromDocument(id, description string, doc FlowDocument) *domain.Flow {
	f := &domain.Flow{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: description,
		Variables:   doc.Variables,
	}
	if f.ID == "" {
		f.ID = id
	}
	f.Viewport = domain.Viewport(doc.Viewport)
	for _, n := range doc.Nodes {
		f.Nodes = append(f.Nodes, domain.Node{
			ID: n.ID, Type: domain.NodeType(n.Type), Label: n.Label,
			Position: domain.Position{X: n.X, Y: n.Y},
			Config:   n.Config, ParentID: n.ParentID,
		})
	}
	for _, e := range doc.Edges {
		f.Edges = append(f.Edges, domain.Edge{
			ID: e.ID, SourceNodeID: e.Source, TargetNodeID: e.Target,
			SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle, Label: e.Label,
		})
	}
	return f
}
