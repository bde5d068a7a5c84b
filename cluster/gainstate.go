package cluster

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/katalvlaran/clusterpack/atomnet"
)

// GainVector is the per-candidate-atom partial gain accumulated while a
// cluster grows (spec §3 PbStats, §4.6 mark_and_update_partial_gain).
type GainVector struct {
	Sharing    float64
	Connection float64
	Timing     float64
	Hill       float64
	Total      float64
}

// GainState is the cluster-wide gain bookkeeping (spec §3 PbStats,
// simplified per DESIGN.md to live once on the Cluster rather than
// duplicated on every composite ancestor — the legacy pb_stats gain
// fields are only ever consulted at the cluster/root level during
// seed-and-grow).
type GainState struct {
	netIndex  map[*atomnet.AtomNet]int
	atomIndex map[*atomnet.AtomBlock]int

	// markedNets / markedBlocks are bitsets over netIndex / atomIndex,
	// bounded by the high-fanout-net-ignore threshold (spec §3).
	markedNets   *bitset.BitSet
	markedBlocks *bitset.BitSet

	// highFanoutTieBreakNet is the single net exempted from the ignore
	// threshold and tracked separately (spec §3).
	highFanoutTieBreakNet *atomnet.AtomNet

	NumPinsOfNetInPb map[*atomnet.AtomNet]int
	Gain             map[*atomnet.AtomBlock]*GainVector

	// TransitiveFanoutPool is the candidate pool reachable by following
	// nets of already-clustered sibling blocks, bounded by the ignore
	// threshold and an explore depth <= 4 (spec §4.6).
	TransitiveFanoutPool []*atomnet.AtomBlock
}

// NewGainState allocates an empty GainState sized for the given universe
// of nets and atoms (the whole netlist, so indices are stable for the
// life of the cluster).
func NewGainState(nets []*atomnet.AtomNet, atoms []*atomnet.AtomBlock) *GainState {
	g := &GainState{
		netIndex:         make(map[*atomnet.AtomNet]int, len(nets)),
		atomIndex:        make(map[*atomnet.AtomBlock]int, len(atoms)),
		markedNets:       bitset.New(uint(len(nets))),
		markedBlocks:     bitset.New(uint(len(atoms))),
		NumPinsOfNetInPb: make(map[*atomnet.AtomNet]int),
		Gain:             make(map[*atomnet.AtomBlock]*GainVector),
	}
	for i, n := range nets {
		g.netIndex[n] = i
	}
	for i, a := range atoms {
		g.atomIndex[a] = i
	}

	return g
}

// MarkNet marks net as touched by a block inside this cluster, unless it
// exceeds highFanoutIgnore, in which case it is recorded only as the
// single high-fanout tie-break net (spec §3, §4.6).
func (g *GainState) MarkNet(n *atomnet.AtomNet, highFanoutIgnore int) {
	if n.Fanout() > highFanoutIgnore {
		g.highFanoutTieBreakNet = n

		return
	}
	if idx, ok := g.netIndex[n]; ok {
		g.markedNets.Set(uint(idx))
	}
}

// NetIsMarked reports whether n was marked via MarkNet.
func (g *GainState) NetIsMarked(n *atomnet.AtomNet) bool {
	idx, ok := g.netIndex[n]

	return ok && g.markedNets.Test(uint(idx))
}

// HighFanoutTieBreakNet returns the single net exempted from the ignore
// threshold, or nil.
func (g *GainState) HighFanoutTieBreakNet() *atomnet.AtomNet { return g.highFanoutTieBreakNet }

// MarkBlock marks atom as a candidate neighbour of the cluster.
func (g *GainState) MarkBlock(a *atomnet.AtomBlock) {
	if idx, ok := g.atomIndex[a]; ok {
		g.markedBlocks.Set(uint(idx))
	}
}

// BlockIsMarked reports whether atom was marked via MarkBlock.
func (g *GainState) BlockIsMarked(a *atomnet.AtomBlock) bool {
	idx, ok := g.atomIndex[a]

	return ok && g.markedBlocks.Test(uint(idx))
}

// MarkedBlocks returns every currently marked atom, in a stable order
// (by ascending netlist index).
func (g *GainState) MarkedBlocks(universe []*atomnet.AtomBlock) []*atomnet.AtomBlock {
	var out []*atomnet.AtomBlock
	for _, a := range universe {
		if g.BlockIsMarked(a) {
			out = append(out, a)
		}
	}

	return out
}

// gainOf returns (creating if absent) the GainVector for atom.
func (g *GainState) gainOf(a *atomnet.AtomBlock) *GainVector {
	gv, ok := g.Gain[a]
	if !ok {
		gv = &GainVector{}
		g.Gain[a] = gv
	}

	return gv
}
