package layout

import (
	"slices"
	"sort"
)

// order reduces crossings with alternating barycenter sweeps and returns
// the best ordering seen.
func (g *layered) order(layers [][]int, sweeps int) [][]int {
	if len(layers) < 2 {
		return layers
	}

	pos := make([]int, len(g.succ))
	index := func(ls [][]int) {
		for _, layer := range ls {
			for i, v := range layer {
				pos[v] = i
			}
		}
	}

	best := clone(layers)
	index(best)
	bestCrossings := g.crossings(best, pos)

	current := clone(layers)
	for i := 0; i < sweeps && bestCrossings > 0; i++ {
		index(current)
		if i%2 == 0 {
			for r := 1; r < len(current); r++ {
				g.sortByBarycenter(current[r], g.pred, pos)
			}
		} else {
			for r := len(current) - 2; r >= 0; r-- {
				g.sortByBarycenter(current[r], g.succ, pos)
			}
		}
		index(current)
		if c := g.crossings(current, pos); c < bestCrossings {
			best = clone(current)
			bestCrossings = c
		}
	}
	return best
}

// sortByBarycenter reorders layer by the mean position of each node's
// neighbours in the fixed adjacent layer. Nodes without neighbours keep
// their current position as weight. pos is updated for the layer.
func (g *layered) sortByBarycenter(layer []int, adj [][]int, pos []int) {
	weight := make(map[int]float64, len(layer))
	for _, v := range layer {
		if len(adj[v]) == 0 {
			weight[v] = float64(pos[v])
			continue
		}
		sum := 0
		for _, w := range adj[v] {
			sum += pos[w]
		}
		weight[v] = float64(sum) / float64(len(adj[v]))
	}
	sort.SliceStable(layer, func(i, j int) bool {
		a, b := layer[i], layer[j]
		if weight[a] != weight[b] {
			return weight[a] < weight[b]
		}
		return pos[a] < pos[b]
	})
	for i, v := range layer {
		pos[v] = i
	}
}

// crossings counts pairwise crossings between consecutive layers.
func (g *layered) crossings(layers [][]int, pos []int) int {
	total := 0
	for r := 0; r+1 < len(layers); r++ {
		type seg struct{ a, b int }
		var segs []seg
		for _, v := range layers[r] {
			for _, w := range g.succ[v] {
				segs = append(segs, seg{pos[v], pos[w]})
			}
		}
		for i := range segs {
			for j := i + 1; j < len(segs); j++ {
				if (segs[i].a < segs[j].a && segs[i].b > segs[j].b) ||
					(segs[i].a > segs[j].a && segs[i].b < segs[j].b) {
					total++
				}
			}
		}
	}
	return total
}

func clone(layers [][]int) [][]int {
	out := make([][]int, len(layers))
	for i, l := range layers {
		out[i] = slices.Clone(l)
	}
	return out
}
