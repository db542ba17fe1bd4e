package dsl

import (
	"errors"
	"fmt"
	"slices"

	"github.com/aretw0/testflow/internal/layout"
	"github.com/aretw0/testflow/pkg/domain"
)

// Builder manages the flow construction.
type Builder struct {
	flow  domain.Flow
	order []string
	nodes map[string]*NodeBuilder
	edges []pendingEdge
	auto  bool
}

type pendingEdge struct {
	source, target, handle, label string
}

// New creates a new flow builder.
func New(id, name string) *Builder {
	return &Builder{
		flow:  domain.Flow{ID: id, Name: name},
		nodes: make(map[string]*NodeBuilder),
		auto:  true,
	}
}

// Describe sets the flow description.
func (b *Builder) Describe(text string) *Builder {
	b.flow.Description = text
	return b
}

// Var adds a flow variable.
func (b *Builder) Var(key, value string) *Builder {
	if b.flow.Variables == nil {
		b.flow.Variables = make(map[string]string)
	}
	b.flow.Variables[key] = value
	return b
}

// ManualLayout keeps the positions set with At instead of running the auto-layout.
func (b *Builder) ManualLayout() *Builder {
	b.auto = false
	return b
}

// Add creates a new node in the flow.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Label: id},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build checks the flow and returns it.
// Edges get deterministic ids of the form "source->target".
func (b *Builder) Build() (*domain.Flow, error) {
	flow := b.flow.Clone()
	flow.Nodes = make([]domain.Node, 0, len(b.order))
	for _, id := range b.order {
		flow.Nodes = append(flow.Nodes, b.nodes[id].node.Clone())
	}

	var errs []error
	for _, n := range flow.Nodes {
		if !n.Type.Valid() {
			errs = append(errs, fmt.Errorf("node %s: %w: %q", n.ID, domain.ErrUnknownNodeType, n.Type))
		}
		if n.ParentID != "" {
			parent, ok := b.nodes[n.ParentID]
			if !ok || parent.node.Type != domain.NodeTypeGroup {
				errs = append(errs, fmt.Errorf("node %s: %w: %s", n.ID, domain.ErrInvalidParent, n.ParentID))
			}
		}
	}

	occupied := make(map[[2]string]bool)
	for _, pe := range b.edges {
		src, ok1 := b.nodes[pe.source]
		_, ok2 := b.nodes[pe.target]
		if !ok1 || !ok2 {
			errs = append(errs, fmt.Errorf("edge %s->%s: %w", pe.source, pe.target, domain.ErrMissingEndpoint))
			continue
		}
		handles := src.node.Type.Handles()
		if pe.handle != "" && !slices.Contains(handles, pe.handle) || pe.handle == "" && len(handles) > 0 {
			errs = append(errs, fmt.Errorf("edge %s->%s: %w: %q", pe.source, pe.target, domain.ErrInvalidHandle, pe.handle))
			continue
		}
		if pe.handle != "" {
			key := [2]string{pe.source, pe.handle}
			if occupied[key] {
				errs = append(errs, fmt.Errorf("edge %s->%s: %w: %s", pe.source, pe.target, domain.ErrHandleOccupied, pe.handle))
				continue
			}
			occupied[key] = true
		}
		id := pe.source + "->" + pe.target
		if pe.handle != "" {
			id += ":" + pe.handle
		}
		flow.Edges = append(flow.Edges, domain.Edge{
			ID:           id,
			SourceNodeID: pe.source,
			TargetNodeID: pe.target,
			SourceHandle: pe.handle,
			Label:        pe.label,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("build flow %s: %w", flow.ID, err)
	}

	if b.auto {
		positions := layout.Compute(flow.Nodes, flow.Edges)
		for i := range flow.Nodes {
			if p, ok := positions[flow.Nodes[i].ID]; ok {
				flow.Nodes[i].Position = p
			}
		}
	}
	return &flow, nil
}
