package placement

import (
	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
)

// baseCost is the flat per-primitive placement cost; Stats.incrCost
// carries the locality bias on top of it. Spec §4.4 names "base +
// incremental" without pinning down the base formula, so a constant of 1
// is used — every primitive of a matching type costs the same before
// locality shapes the choice.
const baseCost = 1.0

// GetNextPrimitiveList returns the lowest-cost feasible placement for mol
// across every type-feasible, currently-valid candidate site, or false if
// none exists. Moving to a different molecule since the last call first
// flushes in_flight/tried sites back to valid (spec §4.4).
func (s *Stats) GetNextPrimitiveList(mol *atomnet.Molecule, occupied func(*arch.PbGraphNode) bool) (*Placement, bool) {
	if mol != s.lastMolecule {
		s.ResetTriedButUnused()
		s.lastMolecule = mol
	}

	var best *Placement
	bestTypeCount := -1

	for typeName, idxs := range s.byType {
		if len(idxs) == 0 || s.sites[idxs[0]].PbType.Model != mol.Root.Model {
			continue
		}

		for _, idx := range idxs {
			if s.stat[idx] != valid {
				continue
			}
			if occupied(s.sites[idx]) {
				s.stat[idx] = invalid
				s.valid.Clear(uint(idx))

				continue
			}

			p, ok := s.tryPlaceMolecule(mol, idx, occupied)
			if !ok {
				s.stat[idx] = tried
				s.valid.Clear(uint(idx))

				continue
			}

			if best == nil {
				best, bestTypeCount = p, s.typeCount[typeName]

				continue
			}

			switch {
			case p.Cost < best.Cost:
				best, bestTypeCount = p, s.typeCount[typeName]
			case p.Cost == best.Cost && s.typeCount[typeName] > bestTypeCount:
				best, bestTypeCount = p, s.typeCount[typeName]
			case p.Cost == best.Cost && s.typeCount[typeName] == bestTypeCount &&
				s.preferOccupiedNeighbor(p.Sites[0], occupied) > s.preferOccupiedNeighbor(best.Sites[0], occupied):
				best, bestTypeCount = p, s.typeCount[typeName]
			}
		}
	}

	if best == nil {
		return nil, false
	}

	for _, site := range best.Sites {
		idx := s.siteIndex[site]
		s.stat[idx] = inFlight
		s.valid.Clear(uint(idx))
	}

	return best, true
}

// tryPlaceMolecule attempts mol rooted at s.sites[rootIdx]. A Single
// molecule is just the root's cost; a ForcedPack or Chain molecule walks
// mol.Blocks in order, placing each successive block on a free,
// type-feasible primitive reachable from the previous block's site
// within the architecture's precomputed connectability radius — the
// pb-graph-adjacency oracle standing in for an explicit pattern-edge walk
// the prepacker's output would otherwise carry.
func (s *Stats) tryPlaceMolecule(mol *atomnet.Molecule, rootIdx int, occupied func(*arch.PbGraphNode) bool) (*Placement, bool) {
	root := s.sites[rootIdx]
	if root.PbType.Model != mol.Root.Model {
		return nil, false
	}

	sites := make([]*arch.PbGraphNode, len(mol.Blocks))
	sites[0] = root
	used := map[*arch.PbGraphNode]bool{root: true}

	for i := 1; i < len(mol.Blocks); i++ {
		next := findChainNeighbor(sites[i-1], mol.Blocks[i].Model, used, occupied)
		if next == nil {
			return nil, false
		}
		sites[i] = next
		used[next] = true
	}

	cost := baseCost + s.incrCost[rootIdx]
	for _, site := range sites[1:] {
		cost += baseCost + s.incrCost[s.siteIndex[site]]
	}

	return &Placement{Blocks: mol.Blocks, Sites: sites, Cost: cost}, true
}

// preferOccupiedNeighbor counts how many of root's siblings under its
// immediate architecture parent already have an occupied descendant,
// the secondary locality tie-break supplemented from
// cluster_placement.cpp (prefer the primitive nearest an already-occupied
// sibling once cost and type-count both tie).
func (s *Stats) preferOccupiedNeighbor(root *arch.PbGraphNode, occupied func(*arch.PbGraphNode) bool) int {
	parent := root.Parent
	if parent == nil {
		return 0
	}

	count := 0
	for _, byType := range parent.ChildrenByMode {
		for _, insts := range byType {
			for _, sib := range insts {
				if sib == nil || sib == root {
					continue
				}
				if subtreeOccupied(sib, occupied) {
					count++
				}
			}
		}
	}

	return count
}

// subtreeOccupied reports whether any primitive under node (node itself
// included) is currently occupied.
func subtreeOccupied(node *arch.PbGraphNode, occupied func(*arch.PbGraphNode) bool) bool {
	if node.IsPrimitive() {
		return occupied(node)
	}
	for _, byType := range node.ChildrenByMode {
		for _, insts := range byType {
			for _, c := range insts {
				if subtreeOccupied(c, occupied) {
					return true
				}
			}
		}
	}

	return false
}

// findChainNeighbor scans from's precomputed connectable-primitive-input
// frontier, nearest depth first, for a free site of the given model.
func findChainNeighbor(from *arch.PbGraphNode, model string, used map[*arch.PbGraphNode]bool, occupied func(*arch.PbGraphNode) bool) *arch.PbGraphNode {
	for _, frontier := range from.ConnectableAtDepth {
		for _, pin := range frontier {
			site := pin.Node
			if site.PbType.Model != model || used[site] || occupied(site) {
				continue
			}

			return site
		}
	}

	return nil
}

// CommitPrimitive marks p's sites permanently invalid (spec §4.4), then
// walks from p.Sites[0] up to the type root applying a locality reward to
// every sibling subtree not on the committed path (decaying ×0.1 per
// ancestor step) and invalidating every subtree under a mode that was
// not the one actually taken at that ancestor.
func (s *Stats) CommitPrimitive(p *Placement) {
	for _, site := range p.Sites {
		idx := s.siteIndex[site]
		s.stat[idx] = invalid
		s.valid.Clear(uint(idx))
	}

	node := p.Sites[0]
	reward := -0.5
	for node.Parent != nil {
		parent := node.Parent
		takenMode, takenType := locate(parent, node)

		for t, insts := range parent.ChildrenByMode[takenMode] {
			for _, sib := range insts {
				if t == takenType && sib == node {
					continue
				}
				s.applyReward(sib, reward)
			}
		}

		for mi, byType := range parent.ChildrenByMode {
			if mi == takenMode {
				continue
			}
			for _, insts := range byType {
				for _, sib := range insts {
					s.invalidateSubtree(sib)
				}
			}
		}

		reward *= 0.1
		node = parent
	}
}

// locate finds which (mode, type) bucket of parent's ChildrenByMode holds
// child; every flattened child instance belongs to exactly one, since
// each mode owns its own independently-flattened child instances.
func locate(parent, child *arch.PbGraphNode) (modeIndex int, typeName string) {
	for mi, byType := range parent.ChildrenByMode {
		for t, insts := range byType {
			for _, inst := range insts {
				if inst == child {
					return mi, t
				}
			}
		}
	}

	return -1, ""
}

func (s *Stats) applyReward(site *arch.PbGraphNode, reward float64) {
	if site.IsPrimitive() {
		if idx, ok := s.siteIndex[site]; ok {
			s.incrCost[idx] += reward
		}

		return
	}
	for _, byType := range site.ChildrenByMode {
		for _, insts := range byType {
			for _, c := range insts {
				s.applyReward(c, reward)
			}
		}
	}
}

func (s *Stats) invalidateSubtree(site *arch.PbGraphNode) {
	if site.IsPrimitive() {
		if idx, ok := s.siteIndex[site]; ok {
			s.stat[idx] = invalid
			s.valid.Clear(uint(idx))
		}

		return
	}
	for _, byType := range site.ChildrenByMode {
		for _, insts := range byType {
			for _, c := range insts {
				s.invalidateSubtree(c)
			}
		}
	}
}
