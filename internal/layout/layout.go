// Package layout computes layered ("rank + order") positions for a flow graph.
//
// The algorithm has three phases:
//
//  1. Ranking: each node gets its longest-path distance from a zero-indegree
//     node. Cycles are broken by ignoring DFS back edges, so every node is ranked.
//  2. Ordering: nodes within a rank are reordered by barycenter sweeps to reduce
//     edge crossings. Edges spanning several ranks are routed through virtual nodes.
//  3. Coordinates: rank maps to the primary axis (top-to-bottom) and order to the
//     secondary axis, using fixed separations.
//
// Every tie is broken by the input order of nodes, so identical inputs always
// produce identical layouts.
package layout

import "github.com/aretw0/testflow/pkg/domain"

// Config holds the layout constants.
type Config struct {
	NodeWidth  float64
	NodeHeight float64
	// NodeSep is the gap between neighbours in the same rank.
	NodeSep float64
	// RankSep is the gap between consecutive ranks.
	RankSep float64
	Origin  domain.Position
	// Sweeps is the number of down/up barycenter passes.
	Sweeps int
}

// DefaultConfig matches the node card size of the editor canvas.
func DefaultConfig() Config {
	return Config{
		NodeWidth:  220,
		NodeHeight: 80,
		NodeSep:    60,
		RankSep:    80,
		Sweeps:     8,
	}
}

// Result is the output of a layout pass.
type Result struct {
	Positions map[string]domain.Position
	Ranks     map[string]int
	// Layers lists real node ids per rank in final order.
	Layers [][]string
}

// Compute returns positions for the given nodes using DefaultConfig.
// It is a pure function of its inputs.
func Compute(nodes []domain.Node, edges []domain.Edge) map[string]domain.Position {
	return Layout(nodes, edges, DefaultConfig()).Positions
}

// Layout runs the full pipeline.
//
// Nodes nested in a group keep their relative position and are not moved.
// Edges touching a nested node are attributed to its top-level group.
func Layout(nodes []domain.Node, edges []domain.Edge, cfg Config) *Result {
	g := build(nodes, edges)
	ranks := g.rank()
	layers := g.layer(ranks)
	layers = g.order(layers, cfg.Sweeps)

	res := &Result{
		Positions: make(map[string]domain.Position, len(g.ids)),
		Ranks:     make(map[string]int, len(g.ids)),
		Layers:    make([][]string, len(layers)),
	}
	for i, id := range g.ids {
		res.Ranks[id] = ranks[i]
	}

	stepX := cfg.NodeWidth + cfg.NodeSep
	stepY := cfg.NodeHeight + cfg.RankSep
	for r, layer := range layers {
		// Layers are centered on the origin's secondary axis.
		offset := float64(len(layer)-1) * stepX / 2
		for i, v := range layer {
			if v >= len(g.ids) {
				continue
			}
			id := g.ids[v]
			res.Positions[id] = domain.Position{
				X: cfg.Origin.X + float64(i)*stepX - offset,
				Y: cfg.Origin.Y + float64(r)*stepY,
			}
			res.Layers[r] = append(res.Layers[r], id)
		}
	}
	return res
}
