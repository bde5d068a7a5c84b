package router

import (
	"errors"

	"github.com/katalvlaran/clusterpack/atomnet"
	"github.com/katalvlaran/clusterpack/rrgraph"
)

// Sentinel errors for router construction and routing.
var (
	// ErrNoDriverTerminal indicates a net was registered with zero terminals.
	ErrNoDriverTerminal = errors.New("router: net has no driver terminal")

	// ErrNoBoundaryEndpoint indicates that a sink of a net has no path
	// from the net's route tree over the currently active RR edges (the
	// expansion queue emptied before reaching it) — surfaced distinctly
	// from ErrRoutingInfeasible, which reports unresolved overuse.
	ErrNoBoundaryEndpoint = errors.New("router: no reachable external boundary endpoint for net")

	// ErrRoutingInfeasible indicates the negotiated-congestion loop ran
	// MaxIterations rounds without clearing every node's overuse — the
	// current atom assignment cannot be legally interconnected.
	ErrRoutingInfeasible = errors.New("router: could not resolve resource conflicts within max_iterations")
)

// RouteEdge is one traversed RR edge in a committed route tree.
type RouteEdge struct {
	From int
	To   int
}

// RouteTree is the merged set of RR nodes and edges used to realize one
// IntraLbNet's connections inside the cluster.
type RouteTree struct {
	Nodes []int
	Edges []RouteEdge
}

// touches reports whether the tree passes through rr.
func (t *RouteTree) touches(rr int) bool {
	for _, n := range t.Nodes {
		if n == rr {
			return true
		}
	}

	return false
}

// IntraLbNet is one atom net with at least one pin inside the cluster
// (spec §4.5). Terminals[0] is always the driver; Terminals[1:] are sinks.
// AtomPins runs parallel to Terminals. A driver or sink outside the
// cluster appears in Terminals as the graph's ExtSrc or ExtSink index.
type IntraLbNet struct {
	AtomNet   *atomnet.AtomNet
	Terminals []int
	AtomPins  []*atomnet.AtomPin

	hasExternalSink   bool
	hasExternalSource bool

	RouteTree *RouteTree
}

// Fanout returns the number of sink terminals (excluding the driver).
func (n *IntraLbNet) Fanout() int { return len(n.Terminals) - 1 }

// NodeStats is the per-RR-node mutable PathFinder state (spec §4.5).
type NodeStats struct {
	Occ             int
	HistoricalUsage float64
}

// OverCapacity reports whether occ exceeds capacity.
func (s NodeStats) OverCapacity(capacity int) bool { return s.Occ > capacity }

// Options configures one router.State (spec §4.5's pres_con_fac,
// pres_fac_mult, acc_fac_mult, hist_fac, max_iterations).
type Options struct {
	InitialPresFac float64
	PresFacMult    float64
	AccFacMult     float64
	HistFac        float64
	MaxIterations  int
}

// DefaultOptions mirrors the coefficients the legacy PathFinder
// implementation ships with.
func DefaultOptions() Options {
	return Options{
		InitialPresFac: 1.0,
		PresFacMult:    1.3,
		AccFacMult:     1.0,
		HistFac:        0.3,
		MaxIterations:  50,
	}
}

// rrg is the package-local alias used throughout for brevity.
type rrg = rrgraph.Graph
