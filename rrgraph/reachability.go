package rrgraph

// computeReachability fills g.reachableFromExtSrc via a forward BFS from
// ExtSrc, and g.canReachExtSink via a backward BFS from ExtSink over a
// once-built reverse adjacency. Per spec §4.1, the precomputation ignores
// which mode is ultimately chosen at any one composite (a path may use a
// different mode's edge at each composite it passes through), so every
// OutEdge is eligible regardless of its Mode tag.
func computeReachability(g *Graph) {
	g.reachableFromExtSrc = bfsForward(g, g.ExtSrc)

	reverse := make([][]int, len(g.Nodes))
	for u, n := range g.Nodes {
		for _, e := range n.OutEdges {
			reverse[e.Target] = append(reverse[e.Target], u)
		}
	}
	g.canReachExtSink = bfsOver(reverse, g.ExtSink)
}

func bfsForward(g *Graph, start int) []bool {
	adj := make([][]int, len(g.Nodes))
	for u, n := range g.Nodes {
		for _, e := range n.OutEdges {
			adj[u] = append(adj[u], e.Target)
		}
	}

	return bfsOver(adj, start)
}

func bfsOver(adj [][]int, start int) []bool {
	seen := make([]bool, len(adj))
	seen[start] = true
	queue := []int{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range adj[u] {
			if !seen[v] {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}

	return seen
}
