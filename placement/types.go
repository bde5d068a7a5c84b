package placement

import (
	"errors"

	"github.com/bits-and-blooms/bitset"

	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
)

// ErrNoFeasiblePlacement indicates every candidate site for a molecule is
// occupied, type-infeasible, or chain-unreachable.
var ErrNoFeasiblePlacement = errors.New("placement: no feasible site for molecule")

// status is one candidate primitive's standing in the current molecule's
// search (spec §9: tagged variant replacing the legacy linked lists).
type status uint8

const (
	valid status = iota
	inFlight
	tried
	invalid
)

// Placement is a successful try_place_molecule result: Sites[i] is where
// Blocks[i] lands, Cost is its incremental+base placement cost.
type Placement struct {
	Blocks []*atomnet.AtomBlock
	Sites  []*arch.PbGraphNode
	Cost   float64
}

// Stats is the per-block-type placement search state (spec §4.4).
type Stats struct {
	sites     []*arch.PbGraphNode
	siteIndex map[*arch.PbGraphNode]int
	byType    map[string][]int
	typeCount map[string]int

	stat     []status
	incrCost []float64

	// valid mirrors stat[i] == valid as a bitset (spec's "evicted/invalid
	// tracking", see SPEC_FULL.md's DOMAIN STACK). GetNextPrimitiveList
	// reads stat, not this bitset.
	valid *bitset.BitSet

	lastMolecule *atomnet.Molecule
}

// NewStats flattens every primitive site under root into a fixed-order
// arena, bucketed by PbType name.
func NewStats(root *arch.PbGraphNode) *Stats {
	var sites []*arch.PbGraphNode
	byType := make(map[string][]int)

	var collect func(n *arch.PbGraphNode)
	collect = func(n *arch.PbGraphNode) {
		if n.IsPrimitive() {
			idx := len(sites)
			sites = append(sites, n)
			byType[n.PbType.Name] = append(byType[n.PbType.Name], idx)

			return
		}
		for _, byT := range n.ChildrenByMode {
			for _, insts := range byT {
				for _, c := range insts {
					collect(c)
				}
			}
		}
	}
	collect(root)

	siteIndex := make(map[*arch.PbGraphNode]int, len(sites))
	for i, s := range sites {
		siteIndex[s] = i
	}

	typeCount := make(map[string]int, len(byType))
	for t, idxs := range byType {
		typeCount[t] = len(idxs)
	}

	valid := bitset.New(uint(len(sites)))
	for i := range sites {
		valid.Set(uint(i))
	}

	return &Stats{
		sites:     sites,
		siteIndex: siteIndex,
		byType:    byType,
		typeCount: typeCount,
		stat:      make([]status, len(sites)),
		incrCost:  make([]float64, len(sites)),
		valid:     valid,
	}
}

// Reset returns every primitive to valid and clears incremental cost
// (spec's reset_cluster_placement_stats — a fresh cluster of this type).
func (s *Stats) Reset() {
	for i := range s.stat {
		s.stat[i] = valid
		s.incrCost[i] = 0
		s.valid.Set(uint(i))
	}
	s.lastMolecule = nil
}

// ResetTriedButUnused moves in_flight and tried sites back to valid
// without touching invalid ones (spec's reset_tried_but_unused).
func (s *Stats) ResetTriedButUnused() {
	for i, st := range s.stat {
		if st == inFlight || st == tried {
			s.stat[i] = valid
			s.valid.Set(uint(i))
		}
	}
	s.lastMolecule = nil
}

// SitesOfModel returns every primitive site of this type whose
// PbType.Model equals model, in flattened arena order. It performs no
// mutation, unlike GetNextPrimitiveList, so callers can use it for a
// cheap "does any site of this shape exist" feasibility peek (spec
// §4.6's get_highest_gain_molecule feasibility gate) without disturbing
// the in-flight/tried search state of an actual placement attempt.
func (s *Stats) SitesOfModel(model string) []*arch.PbGraphNode {
	var out []*arch.PbGraphNode
	for _, site := range s.sites {
		if site.PbType.Model == model {
			out = append(out, site)
		}
	}

	return out
}

// MarkTried demotes sites (normally a just-rejected in_flight placement)
// to tried, excluding them from the rest of this molecule's search
// without declaring them permanently invalid.
func (s *Stats) MarkTried(sites []*arch.PbGraphNode) {
	for _, site := range sites {
		if idx, ok := s.siteIndex[site]; ok {
			s.stat[idx] = tried
			s.valid.Clear(uint(idx))
		}
	}
}
