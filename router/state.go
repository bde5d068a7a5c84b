package router

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
	"github.com/katalvlaran/clusterpack/rrgraph"
)

// State is one cluster's router instance: an RR graph, the PathFinder
// congestion coefficients of Options, and the mutable per-node occupancy
// and historical-usage counters that persist across Route calls so a
// caller can route, mutate the atom assignment, and route again without
// losing the negotiated-congestion history (spec §4.5).
type State struct {
	graph *rrg
	opts  Options

	stats   []NodeStats
	presFac float64

	// activeModes[owner] is the mode index currently chosen for the
	// composite PbGraphNode instance owner; an owner absent from the map
	// has no mode chosen, so every edge it owns is inactive.
	activeModes map[*arch.PbGraphNode]int

	nets []*IntraLbNet
}

// NewState builds a router over g with the given PathFinder coefficients.
func NewState(g *rrg, opts Options) *State {
	return &State{
		graph:       g,
		opts:        opts,
		stats:       make([]NodeStats, g.NumNodes()),
		presFac:     opts.InitialPresFac,
		activeModes: make(map[*arch.PbGraphNode]int),
	}
}

// SetActiveMode records that owner currently has modeIndex selected,
// activating every RR edge wired by that mode's interconnect.
func (s *State) SetActiveMode(owner *arch.PbGraphNode, modeIndex int) {
	s.activeModes[owner] = modeIndex
}

// ClearActiveMode un-sets owner's active mode, deactivating every edge it
// owns (used when a composite Pb instance loses its last child atom).
func (s *State) ClearActiveMode(owner *arch.PbGraphNode) {
	delete(s.activeModes, owner)
}

// edgeActive reports whether e currently participates in the graph: every
// mode-independent edge is always active; a mode-tagged edge is active
// only while its Owner instance has that exact mode selected.
func (s *State) edgeActive(e rrgraph.OutEdge) bool {
	if e.Mode == nil {
		return true
	}
	active, ok := s.activeModes[e.Owner]

	return ok && active == e.ModeIndex
}

// Stats returns the current PathFinder occupancy/history for RR node rr.
func (s *State) Stats(rr int) NodeStats { return s.stats[rr] }

// Nets returns the nets currently registered on this State.
func (s *State) Nets() []*IntraLbNet { return s.nets }

// RegisterNet adds net to the set this State routes, collapsing any sink
// terminals that coincide (two atom pins sharing one equivalence-class
// Sink RR node resolve to a single tree target). AtomPins, when present,
// is filtered in lockstep so it stays parallel to the deduplicated
// Terminals.
func (s *State) RegisterNet(net *IntraLbNet) error {
	if len(net.Terminals) == 0 {
		return ErrNoDriverTerminal
	}

	hasPins := len(net.AtomPins) == len(net.Terminals)

	seen := make(map[int]bool, len(net.Terminals))
	terms := make([]int, 0, len(net.Terminals))
	var pins []*atomnet.AtomPin
	if hasPins {
		pins = make([]*atomnet.AtomPin, 0, len(net.Terminals))
	}

	for i, t := range net.Terminals {
		if i > 0 && seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
		if hasPins {
			pins = append(pins, net.AtomPins[i])
		}
	}

	net.Terminals = terms
	if hasPins {
		net.AtomPins = pins
	}

	s.nets = append(s.nets, net)

	return nil
}

// nodeCost returns the PathFinder expansion cost of entering RR node rr:
// intrinsic cost plus historical congestion, scaled by (occ+1-capacity) ·
// pres_con_fac when one more use would put rr over capacity (spec §4.5's
// pres_con_fac term, matching cluster_router.cpp:1062's
// `incr_cost *= (usage * pres_con_fac)`).
func (s *State) nodeCost(rr int) float64 {
	node := &s.graph.Nodes[rr]
	st := &s.stats[rr]

	cost := node.IntrinsicCost + st.HistoricalUsage*s.opts.HistFac
	if over := st.Occ + 1 - node.Capacity; over > 0 {
		cost *= float64(over) * s.presFac
	}

	return cost
}

// fanoutShapeFactor biases expansion toward already-branching RR nodes for
// high-fanout nets and toward single-successor RR nodes for low-fanout
// nets (spec §4.5 step 4, cluster_router.cpp:1071-1081's fanout_factor).
func (s *State) fanoutShapeFactor(rr int, netFanout int) float64 {
	if netFanout < 1 {
		netFanout = 1
	}
	if len(s.graph.Nodes[rr].OutEdges) > 1 {
		return 0.85 + 0.25/float64(netFanout)
	}

	return 1.15 - 0.25/float64(netFanout)
}

// decommit removes net's current route tree from the occupancy counters,
// a no-op the first time a net is routed.
func (s *State) decommit(net *IntraLbNet) {
	if net.RouteTree == nil {
		return
	}
	for _, n := range net.RouteTree.Nodes {
		s.stats[n].Occ--
	}
}

// commit adds the nodes of tree to the occupancy counters.
func (s *State) commit(tree *RouteTree) {
	for _, n := range tree.Nodes {
		s.stats[n].Occ++
	}
}

// expand grows tree's frontier with a lazy-decrease-key Dijkstra search
// (grounded on dijkstra.nodePQ, see heap.go) until it reaches target,
// returning the new nodes and edges to splice in, target first and the
// node next to the existing tree last.
// Cost accrues from every already-routed tree node simultaneously, so the
// cheapest attachment point for target is found regardless of which tree
// node it branches from (spec §4.5's multi-terminal maze expansion).
// netFanout is the number of sinks on the net currently being routed, used
// to shape expansion toward high- or low-fanout RR nodes (fanoutShapeFactor).
func (s *State) expand(tree *RouteTree, target int, netFanout int) ([]int, []RouteEdge, bool) {
	n := s.graph.NumNodes()
	best := make([]float64, n)
	came := make([]int, n)
	visited := make([]bool, n)
	for i := range best {
		best[i] = math.Inf(1)
		came[i] = -2 // unreached
	}

	pq := make(expansionPQ, 0, len(tree.Nodes))
	for _, t := range tree.Nodes {
		best[t] = 0
		came[t] = -1 // tree root: no predecessor to splice in
		pq = append(pq, &expansionItem{rr: t, prevRR: -1, cost: 0})
	}
	heap.Init(&pq)

	for pq.Len() > 0 {
		it := heap.Pop(&pq).(*expansionItem)
		if visited[it.rr] {
			continue
		}
		visited[it.rr] = true
		if it.prevRR != -1 {
			came[it.rr] = it.prevRR
		}
		if it.rr == target {
			break
		}

		for _, e := range s.graph.Nodes[it.rr].OutEdges {
			if visited[e.Target] || !s.edgeActive(e) {
				continue
			}
			incr := (e.Cost + s.nodeCost(e.Target)) * s.fanoutShapeFactor(e.Target, netFanout)
			nc := it.cost + incr
			if nc < best[e.Target] {
				best[e.Target] = nc
				heap.Push(&pq, &expansionItem{rr: e.Target, prevRR: it.rr, cost: nc})
			}
		}
	}

	if !visited[target] {
		return nil, nil, false
	}

	var nodes []int
	var edges []RouteEdge
	for cur := target; came[cur] != -1; {
		prev := came[cur]
		nodes = append(nodes, cur)
		edges = append(edges, RouteEdge{From: prev, To: cur})
		cur = prev
	}

	return nodes, edges, true
}

// routeNet rips up net's previous route tree, if any, and rebuilds it
// against the current occupancy/historical-usage costs: one maze
// expansion per sink terminal, each growing from the whole tree built so
// far (spec §4.5 steps 0-5).
func (s *State) routeNet(net *IntraLbNet) error {
	s.decommit(net)

	driver := net.Terminals[0]
	tree := &RouteTree{Nodes: []int{driver}}
	netFanout := net.Fanout()

	for _, sink := range net.Terminals[1:] {
		if tree.touches(sink) {
			continue
		}

		nodes, edges, ok := s.expand(tree, sink, netFanout)
		if !ok {
			net.RouteTree = nil

			return fmt.Errorf("%w: net %q has no path to rr node %d", ErrNoBoundaryEndpoint, net.AtomNet.Name, sink)
		}

		tree.Nodes = append(tree.Nodes, nodes...)
		tree.Edges = append(tree.Edges, edges...)
	}

	net.RouteTree = tree
	s.commit(tree)

	return nil
}

// hasOvercapacity reports whether any RR node's occupancy currently
// exceeds its capacity.
func (s *State) hasOvercapacity() bool {
	for i := range s.stats {
		if s.stats[i].OverCapacity(s.graph.Nodes[i].Capacity) {
			return true
		}
	}

	return false
}

// updateHistoricalUsage accumulates AccFacMult-scaled overuse into every
// over-capacity node's HistoricalUsage, permanently biasing future
// expansions away from chronically congested resources (spec §4.5).
func (s *State) updateHistoricalUsage() {
	for i := range s.stats {
		capacity := s.graph.Nodes[i].Capacity
		if over := s.stats[i].Occ - capacity; over > 0 {
			s.stats[i].HistoricalUsage += s.opts.AccFacMult * float64(over)
		}
	}
}

// Route runs the negotiated-congestion loop (spec §4.5): rip-up and
// re-route every registered net, then either accept the result (no node
// over capacity) or escalate PresFac and retry, up to MaxIterations.
func (s *State) Route() error {
	for iter := 0; iter < s.opts.MaxIterations; iter++ {
		for _, net := range s.nets {
			if err := s.routeNet(net); err != nil {
				return err
			}
		}

		if !s.hasOvercapacity() {
			return nil
		}

		s.updateHistoricalUsage()
		s.presFac *= s.opts.PresFacMult
	}

	return ErrRoutingInfeasible
}
