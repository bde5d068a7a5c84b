package rrgraph

import (
	"errors"

	"github.com/katalvlaran/clusterpack/arch"
)

// Sentinel errors for RR-graph construction.
var (
	// ErrNilRoot indicates Build was called with a nil architecture root.
	ErrNilRoot = errors.New("rrgraph: root pb_graph_node is nil")
)

// Kind tags an LbRrNode's role in the graph (spec §9: tagged variant
// replacing the legacy deep inheritance hierarchy).
type Kind uint8

const (
	// Source is a node flow can originate from (a primitive output pin, or
	// the synthetic ext_src).
	Source Kind = iota
	// Sink is a node flow must terminate at (a primitive input's private
	// or equivalence-shared sink, or the synthetic ext_sink).
	Sink
	// Intermediate is every other node: composite-block pins (any
	// direction), primitive input/clock pins (which forward to a Sink),
	// and the synthetic ext_rr.
	Intermediate
)

// Cost constants bias the router away from leaving the cluster unless
// necessary (spec §4.1: "edges touching ext_rr carry cost 'external',
// ≫ internal, e.g. 1000× internal").
const (
	InternalCost = 1.0
	ExternalCost = 1000.0
)

// OutEdge is one directed edge out of a Node. Mode is nil for edges that
// are always active (primitive input→sink edges, and every edge touching
// a synthetic node); otherwise it names the Mode whose interconnect
// defines the edge, so the router can filter by the cluster's currently
// active mode per ancestor.
type OutEdge struct {
	Target    int
	Cost      float64
	Mode      *arch.Mode
	ModeIndex int               // Mode's index within Owner.PbType.Modes; meaningless when Mode is nil
	Owner     *arch.PbGraphNode // composite instance whose active mode gates this edge; nil when Mode is nil
}

// Node is one LbRrNode: a vertex of the per-block-type RR graph.
type Node struct {
	Kind          Kind
	Capacity      int
	IntrinsicCost float64
	Pin           *arch.PbGraphPin // nil for the three synthetic nodes
	OutEdges      []OutEdge
}

// Graph is the complete per-block-type RR graph plus reachability tables.
type Graph struct {
	Type *arch.PbType
	Root *arch.PbGraphNode
	Nodes []Node

	ExtSrc  int
	ExtSink int
	ExtRR   int

	// reachableFromExtSrc[n] / canReachExtSink[n] are the §4.1 reachability
	// precomputation, collapsed to booleans since this construction emits
	// exactly one ext_src and one ext_sink per type.
	reachableFromExtSrc []bool
	canReachExtSink     []bool
}

// NumNodes returns the number of RR nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.Nodes) }

// ReachableFromExtSrc reports whether node n is reachable from the
// synthetic external source by any sequence of mode choices.
func (g *Graph) ReachableFromExtSrc(n int) bool { return g.reachableFromExtSrc[n] }

// CanReachExtSink reports whether the synthetic external sink is
// reachable from node n by any sequence of mode choices.
func (g *Graph) CanReachExtSink(n int) bool { return g.canReachExtSink[n] }

// ExternalSourceFor returns (ExtSrc, true) if every node in sinkNodes is
// reachable from the external source, i.e. ExtSrc is a valid boundary
// driver for a net whose sinks all lie inside the cluster (spec §4.1).
func (g *Graph) ExternalSourceFor(sinkNodes []int) (int, bool) {
	for _, n := range sinkNodes {
		if !g.reachableFromExtSrc[n] {
			return 0, false
		}
	}

	return g.ExtSrc, true
}

// ExternalSinkFor returns (ExtSink, true) if the external sink is
// reachable from driverNode, i.e. ExtSink is a valid boundary terminal
// for a net whose driver lies inside the cluster (spec §4.1).
func (g *Graph) ExternalSinkFor(driverNode int) (int, bool) {
	if !g.canReachExtSink[driverNode] {
		return 0, false
	}

	return g.ExtSink, true
}
