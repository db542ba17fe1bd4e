package dsl

import (
	"github.com/aretw0/testflow/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

func (n *NodeBuilder) set(t domain.NodeType, config map[string]any) *NodeBuilder {
	n.node.Type = t
	n.node.Config = config
	return n
}

// Label sets the display label. It defaults to the node id.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Label = label
	return n
}

// At places the node. Only used together with Builder.ManualLayout.
func (n *NodeBuilder) At(x, y float64) *NodeBuilder {
	n.node.Position = domain.Position{X: x, Y: y}
	return n
}

// In nests the node inside a group node.
func (n *NodeBuilder) In(group string) *NodeBuilder {
	n.node.ParentID = group
	return n
}

// Request makes the node an HTTP request referencing a saved request.
func (n *NodeBuilder) Request(requestID string) *NodeBuilder {
	return n.set(domain.NodeTypeHTTPRequest, map[string]any{"request_id": requestID})
}

// InlineRequest makes the node an HTTP request described inline.
func (n *NodeBuilder) InlineRequest(method, url string) *NodeBuilder {
	return n.set(domain.NodeTypeHTTPRequest, map[string]any{
		"inline_request": map[string]any{"method": method, "url": url},
	})
}

// Collection makes the node run a saved collection.
func (n *NodeBuilder) Collection(collectionID string) *NodeBuilder {
	return n.set(domain.NodeTypeCollection, map[string]any{"collection_id": collectionID})
}

// Assert makes the node an assertion with the given checks.
func (n *NodeBuilder) Assert(checks ...domain.Assertion) *NodeBuilder {
	list := make([]any, len(checks))
	for i, c := range checks {
		list[i] = map[string]any{
			"type":     c.Type,
			"operator": c.Operator,
			"expected": c.Expected,
			"field":    c.Field,
		}
	}
	return n.set(domain.NodeTypeAssertion, map[string]any{"assertions": list})
}

// Script makes the node run a script.
func (n *NodeBuilder) Script(source string) *NodeBuilder {
	return n.set(domain.NodeTypeScript, map[string]any{"script": source, "language": "javascript"})
}

// Delay makes the node wait for ms milliseconds.
func (n *NodeBuilder) Delay(ms int) *NodeBuilder {
	return n.set(domain.NodeTypeDelay, map[string]any{"delay_ms": ms})
}

// Condition makes the node branch on an expression.
func (n *NodeBuilder) Condition(expression string) *NodeBuilder {
	return n.set(domain.NodeTypeCondition, map[string]any{"expression": expression})
}

// Loop makes the node repeat its body count times.
func (n *NodeBuilder) Loop(count int) *NodeBuilder {
	return n.set(domain.NodeTypeLoop, map[string]any{
		"mode":           domain.LoopModeCount,
		"count":          count,
		"max_iterations": domain.DefaultMaxIterations,
	})
}

// LoopWhile makes the node repeat its body while condition holds.
func (n *NodeBuilder) LoopWhile(condition string, maxIterations int) *NodeBuilder {
	return n.set(domain.NodeTypeLoop, map[string]any{
		"mode":           domain.LoopModeCondition,
		"condition":      condition,
		"max_iterations": maxIterations,
	})
}

// SetVar makes the node a variable assignment, or adds to an existing one.
func (n *NodeBuilder) SetVar(key, value string) *NodeBuilder {
	var list []any
	if n.node.Type == domain.NodeTypeSetVariable {
		list, _ = n.node.Config["assignments"].([]any)
	}
	list = append(list, map[string]any{"key": key, "value": value})
	return n.set(domain.NodeTypeSetVariable, map[string]any{"assignments": list})
}

// Group makes the node a visual container.
func (n *NodeBuilder) Group() *NodeBuilder {
	return n.set(domain.NodeTypeGroup, nil)
}

func (n *NodeBuilder) connect(target, handle string) *NodeBuilder {
	n.builder.edges = append(n.builder.edges, pendingEdge{source: n.node.ID, target: target, handle: handle})
	return n
}

// Go connects the default handle to target.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.connect(target, "")
}

// True connects the true branch of a condition or assertion.
func (n *NodeBuilder) True(target string) *NodeBuilder {
	return n.connect(target, domain.HandleTrue)
}

// False connects the false branch of a condition or assertion.
func (n *NodeBuilder) False(target string) *NodeBuilder {
	return n.connect(target, domain.HandleFalse)
}

// Body connects the loop body.
func (n *NodeBuilder) Body(target string) *NodeBuilder {
	return n.connect(target, domain.HandleLoop)
}

// Done connects what runs after the loop finishes.
func (n *NodeBuilder) Done(target string) *NodeBuilder {
	return n.connect(target, domain.HandleDone)
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	return n.node.Clone()
}
