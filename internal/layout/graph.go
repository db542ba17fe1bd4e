package layout

import "github.com/aretw0/testflow/pkg/domain"

// layered is an index-based graph. Indexes below len(ids) are real nodes in
// input order; higher indexes are virtual nodes added while layering.
type layered struct {
	ids   []string
	succ  [][]int
	pred  [][]int
	total int
}

func build(nodes []domain.Node, edges []domain.Edge) *layered {
	parent := make(map[string]string, len(nodes))
	for _, n := range nodes {
		parent[n.ID] = n.ParentID
	}
	// top resolves a node to its outermost group, guarding against parent cycles.
	top := func(id string) string {
		for range len(nodes) {
			p, ok := parent[id]
			if !ok || p == "" {
				return id
			}
			if _, known := parent[p]; !known {
				return id
			}
			id = p
		}
		return id
	}

	g := &layered{}
	index := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if n.ParentID != "" && top(n.ID) != n.ID {
			continue
		}
		if _, dup := index[n.ID]; dup {
			continue
		}
		index[n.ID] = len(g.ids)
		g.ids = append(g.ids, n.ID)
	}
	g.total = len(g.ids)
	g.succ = make([][]int, g.total)
	g.pred = make([][]int, g.total)

	seen := make(map[[2]int]bool)
	for _, e := range edges {
		from, ok1 := index[top(e.SourceNodeID)]
		to, ok2 := index[top(e.TargetNodeID)]
		if !ok1 || !ok2 || from == to || seen[[2]int{from, to}] {
			continue
		}
		seen[[2]int{from, to}] = true
		g.succ[from] = append(g.succ[from], to)
		g.pred[to] = append(g.pred[to], from)
	}
	return g
}

// acyclic returns the edge set with DFS back edges removed. DFS roots are
// zero-indegree nodes first, then the remaining nodes, both in input order.
func (g *layered) acyclic() [][]int {
	const (
		unvisited = iota
		active
		done
	)
	state := make([]int, g.total)
	out := make([][]int, g.total)

	var visit func(v int)
	visit = func(v int) {
		state[v] = active
		for _, w := range g.succ[v] {
			switch state[w] {
			case active:
				// back edge: dropped
			case unvisited:
				out[v] = append(out[v], w)
				visit(w)
			default:
				out[v] = append(out[v], w)
			}
		}
		state[v] = done
	}

	for v := 0; v < g.total; v++ {
		if len(g.pred[v]) == 0 && state[v] == unvisited {
			visit(v)
		}
	}
	for v := 0; v < g.total; v++ {
		if state[v] == unvisited {
			visit(v)
		}
	}
	return out
}

// rank assigns longest-path ranks over the acyclic edge set.
func (g *layered) rank() []int {
	dag := g.acyclic()
	indeg := make([]int, g.total)
	for _, targets := range dag {
		for _, w := range targets {
			indeg[w]++
		}
	}

	ranks := make([]int, g.total)
	queue := make([]int, 0, g.total)
	for v := 0; v < g.total; v++ {
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range dag[v] {
			if ranks[v]+1 > ranks[w] {
				ranks[w] = ranks[v] + 1
			}
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
	}

	// Layering edges follow the DAG so every edge points to a higher rank.
	g.succ = dag
	g.pred = make([][]int, g.total)
	for v, targets := range dag {
		for _, w := range targets {
			g.pred[w] = append(g.pred[w], v)
		}
	}
	return ranks
}

// layer groups nodes by rank and splits long edges with virtual nodes.
func (g *layered) layer(ranks []int) [][]int {
	maxRank := 0
	for _, r := range ranks {
		maxRank = max(maxRank, r)
	}
	if g.total == 0 {
		return nil
	}
	layers := make([][]int, maxRank+1)
	for v := 0; v < g.total; v++ {
		layers[ranks[v]] = append(layers[ranks[v]], v)
	}

	succ := make([][]int, g.total)
	for v := 0; v < g.total; v++ {
		for _, w := range g.succ[v] {
			prev := v
			for r := ranks[v] + 1; r < ranks[w]; r++ {
				virt := len(succ)
				succ = append(succ, nil)
				layers[r] = append(layers[r], virt)
				succ[prev] = append(succ[prev], virt)
				prev = virt
			}
			succ[prev] = append(succ[prev], w)
		}
	}

	g.succ = succ
	g.pred = make([][]int, len(succ))
	for v, targets := range succ {
		for _, w := range targets {
			g.pred[w] = append(g.pred[w], v)
		}
	}
	return layers
}
