package legalizer

import (
	"github.com/katalvlaran/clusterpack/atomnet"
	"github.com/katalvlaran/clusterpack/cluster"
	"github.com/katalvlaran/clusterpack/placement"
)

// gainAlpha weights timing_gain against the sharing/connection blend, and
// gainBeta weights sharing_gain against connection_gain within that blend
// (spec §4.6 update_total_gain: gain[b] ← α·timing_gain[b] +
// (1−α)·((1−β)·sharing_gain[b] + β·connection_gain[b]) / num_used_pins(b)).
// Neither weight's exact value is prescribed; an even split is used, see
// DESIGN.md.
const (
	gainAlpha = 0.5
	gainBeta  = 0.5
)

// PickSeed chooses the highest-scoring still-unclustered atom, by
// SeedPolicy, and the molecule of maximum BaseGain among those the atom
// belongs to (spec §4.6 get_seed_atom / get_molecule_for_seed_atom).
func (l *Clusterer) PickSeed() (*atomnet.AtomBlock, *atomnet.Molecule, bool) {
	maxInputs := l.store.MaxNumExtInputs()

	var best *atomnet.AtomBlock
	bestScore := -1.0

	for _, a := range l.allAtoms {
		if l.atomCluster[a] != nil {
			continue
		}
		if l.failures[a] >= l.opts.MaxAtomFailures {
			continue
		}
		if !l.atomHasValidMolecule(a) {
			continue
		}

		score := l.seedScore(a, maxInputs)
		if score > bestScore {
			bestScore = score
			best = a
		}
	}

	if best == nil {
		return nil, nil, false
	}

	var bestMol *atomnet.Molecule
	for _, m := range l.store.MoleculesContaining(best) {
		if !l.store.IsValid(m) {
			continue
		}
		if bestMol == nil || l.store.Stats(m).BaseGain > l.store.Stats(bestMol).BaseGain {
			bestMol = m
		}
	}
	if bestMol == nil {
		return nil, nil, false
	}

	return best, bestMol, true
}

func (l *Clusterer) atomHasValidMolecule(a *atomnet.AtomBlock) bool {
	for _, m := range l.store.MoleculesContaining(a) {
		if l.store.IsValid(m) {
			return true
		}
	}

	return false
}

// seedScore ranks an unclustered atom for seed selection (spec §4.6):
// SeedTiming uses raw criticality, SeedMaxInputs uses the atom's own
// input-pin count over maxInputs, SeedBlend weighs the two by gainAlpha
// and gainBeta. Molecule size and the molecule's external-input count do
// not enter the score. When BalanceBlockTypeUtil
// is set, atoms whose model only fits an under-utilized block type are
// bumped ahead of otherwise-equal atoms (spec §6's balance_block_type_util
// flag), so new clusters open preferentially in the least-used types.
func (l *Clusterer) seedScore(a *atomnet.AtomBlock, maxInputs int) float64 {
	crit := l.criticalityOf(a)

	var score float64
	switch l.opts.SeedPolicy {
	case SeedTiming:
		score = crit
	case SeedMaxInputs:
		score = atomInputRatio(a, maxInputs)
	default:
		score = gainAlpha*crit + gainBeta*atomInputRatio(a, maxInputs)
	}

	if l.opts.BalanceBlockTypeUtil {
		score += l.underutilizedBonus(a)
	}

	return score
}

// underutilizedBonus favors an atom whose model fits some block type with
// few committed clusters so far, by the least-loaded such type's current
// usage count (0 usage ⇒ the maximal +1 bonus).
func (l *Clusterer) underutilizedBonus(a *atomnet.AtomBlock) float64 {
	usage := l.TypeUsage()

	best := -1
	for name, stats := range l.stats {
		if len(stats.SitesOfModel(a.Model)) == 0 {
			continue
		}
		if u := usage[name]; best == -1 || u < best {
			best = u
		}
	}
	if best == -1 {
		return 0
	}

	return 1.0 / float64(1+best)
}

func atomInputRatio(a *atomnet.AtomBlock, maxInputs int) float64 {
	if maxInputs == 0 {
		return 0
	}

	return float64(len(a.InputPins())) / float64(maxInputs)
}

func (l *Clusterer) criticalityOf(a *atomnet.AtomBlock) float64 {
	if l.Criticality == nil {
		return 0
	}

	return l.Criticality(a)
}

// markAndUpdatePartialGain records atom's nets as touched by e, marks
// every other block on those nets as a gain candidate, and recomputes
// its GainVector (spec §4.6 mark_and_update_partial_gain). Blocks on a
// net whose fanout exceeds the high-fanout ignore threshold are not
// marked; such a net is only offered through the tie-break tier.
func (l *Clusterer) markAndUpdatePartialGain(e *clusterEntry, atom *atomnet.AtomBlock) {
	ignore := l.opts.highFanoutIgnore(e.blockType)

	for _, pin := range atom.Pins() {
		n := pin.Net
		if n == nil {
			continue
		}

		e.cl.Gain.MarkNet(n, ignore)
		e.cl.Gain.NumPinsOfNetInPb[n]++
		if n.Fanout() > ignore {
			continue
		}

		for _, b := range netBlocks(n) {
			if b == atom || l.atomCluster[b] != nil {
				continue
			}
			e.cl.Gain.MarkBlock(b)
			l.updateTotalGain(e, b)
		}
	}
}

// gainVector computes b's current GainVector against cluster e. For each
// marked net on b: when b has no input driven from outside e, Sharing
// grows by the net's pins inside e over the number of blocks on the net;
// otherwise Connection grows by 1/fanout and Sharing is not increased.
func (l *Clusterer) gainVector(e *clusterEntry, b *atomnet.AtomBlock) *cluster.GainVector {
	gv := &cluster.GainVector{}

	inCluster := make(map[*atomnet.AtomBlock]bool, len(e.atoms)+1)
	for _, a := range e.atoms {
		inCluster[a] = true
	}

	for _, pin := range b.Pins() {
		n := pin.Net
		if n == nil || !e.cl.Gain.NetIsMarked(n) {
			continue
		}

		touching := e.cl.Gain.NumPinsOfNetInPb[n]
		total := len(netBlocks(n))
		if total == 0 {
			continue
		}

		share := float64(touching) / float64(total)
		if atomExternalInputCount(inCluster, b) == 0 {
			gv.Sharing += share
		} else {
			gv.Connection += 1.0 / float64(max(1, n.Fanout()))
		}
	}

	gv.Timing = l.criticalityOf(b)
	gv.Hill = -float64(atomExternalInputCount(inCluster, b))

	gv.Total = (gainAlpha*gv.Timing + (1-gainAlpha)*((1-gainBeta)*gv.Sharing+gainBeta*gv.Connection)) / usedPinCount(b)

	return gv
}

// usedPinCount returns the number of b's pins that carry a net, floored at
// 1 so update_total_gain's normalization never divides by zero (spec §4.6
// update_total_gain's num_used_pins(b) term).
func usedPinCount(b *atomnet.AtomBlock) float64 {
	n := 0
	for _, p := range b.Pins() {
		if p.Net != nil {
			n++
		}
	}
	if n == 0 {
		return 1
	}

	return float64(n)
}

func (l *Clusterer) updateTotalGain(e *clusterEntry, b *atomnet.AtomBlock) {
	gv := l.gainVector(e, b)
	if cur, ok := e.cl.Gain.Gain[b]; ok {
		*cur = *gv
	} else {
		e.cl.Gain.Gain[b] = gv
	}
}

// atomExternalInputCount counts b's input pins whose driver lies outside
// inCluster (used to decide whether a net is fully internal for sharing
// purposes).
func atomExternalInputCount(inCluster map[*atomnet.AtomBlock]bool, b *atomnet.AtomBlock) int {
	count := 0
	for _, p := range b.InputPins() {
		if p.Net == nil {
			continue
		}
		driver := p.Net.DriverBlock()
		if driver == nil || !inCluster[driver] {
			count++
		}
	}

	return count
}

// netBlocks returns every distinct AtomBlock touching n (driver plus
// every sink).
func netBlocks(n *atomnet.AtomNet) []*atomnet.AtomBlock {
	var out []*atomnet.AtomBlock
	seen := make(map[*atomnet.AtomBlock]bool)

	add := func(b *atomnet.AtomBlock) {
		if b != nil && !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}

	if n.Driver != nil {
		add(n.Driver.Block)
	}
	for _, s := range n.Sinks {
		add(s.Block)
	}

	return out
}

// GetHighestGainMolecule picks the next molecule to try packing into e,
// by spec §4.6's priority order: marked (gain-connected) blocks first, by
// descending GainVector.Total; then the high-fanout tie-break net's
// blocks; then the transitive-fanout pool; finally (if
// AllowUnrelatedClustering) any molecule from the fanin index. Every
// tier is gated by moleculeFits so a molecule whose shape cannot possibly
// land in e is never offered.
func (l *Clusterer) GetHighestGainMolecule(e *clusterEntry) (*atomnet.Molecule, bool) {
	stats := l.stats[e.blockType]

	if m, ok := l.bestFromCandidates(e, stats, e.cl.Gain.MarkedBlocks(l.allAtoms)); ok {
		return m, true
	}

	if tb := e.cl.Gain.HighFanoutTieBreakNet(); tb != nil {
		if m, ok := l.bestFromCandidates(e, stats, netBlocks(tb)); ok {
			return m, true
		}
	}

	pool := l.transitiveFanoutPool(e)
	e.cl.Gain.TransitiveFanoutPool = pool
	if m, ok := l.bestFromCandidates(e, stats, pool); ok {
		return m, true
	}

	if !l.opts.AllowUnrelatedClustering {
		return nil, false
	}

	if l.faninIndex == nil {
		l.faninIndex = atomnet.NewFaninIndex(l.store)
	}

	remaining := l.store.MaxNumExtInputs()
	for {
		m, ok := l.faninIndex.Pick(remaining)
		if !ok {
			return nil, false
		}
		if l.moleculeFits(e, stats, m) {
			return m, true
		}
		remaining = l.store.Stats(m).NumExtInputs - 1
		if remaining < 0 {
			return nil, false
		}
	}
}

// bestFromCandidates visits the still-unclustered candidate atoms in
// descending recorded GainVector.Total order and returns, for the first
// one with any valid, fitting molecule, its molecule of highest BaseGain.
func (l *Clusterer) bestFromCandidates(e *clusterEntry, stats *placement.Stats, candidates []*atomnet.AtomBlock) (*atomnet.Molecule, bool) {
	type scored struct {
		atom  *atomnet.AtomBlock
		total float64
	}

	var ranked []scored
	for _, a := range candidates {
		if l.atomCluster[a] != nil || l.failures[a] >= l.opts.MaxAtomFailures {
			continue
		}
		gv, ok := e.cl.Gain.Gain[a]
		total := 0.0
		if ok {
			total = gv.Total
		}
		ranked = append(ranked, scored{a, total})
	}

	for len(ranked) > 0 {
		bestIdx := 0
		for i, r := range ranked {
			if r.total > ranked[bestIdx].total {
				bestIdx = i
			}
		}
		atom := ranked[bestIdx].atom
		ranked[bestIdx] = ranked[len(ranked)-1]
		ranked = ranked[:len(ranked)-1]

		var bestMol *atomnet.Molecule
		for _, m := range l.store.MoleculesContaining(atom) {
			if !l.store.IsValid(m) || !l.moleculeFits(e, stats, m) {
				continue
			}
			if bestMol == nil || l.store.Stats(m).BaseGain > l.store.Stats(bestMol).BaseGain {
				bestMol = m
			}
		}
		if bestMol != nil {
			return bestMol, true
		}
	}

	return nil, false
}

// moleculeFits is the feasibility gate (spec §4.6): at least one site of
// the molecule's root model must still be free within e's own instance
// tree, peeked without mutating the real search state (architecture
// sites are shared across every cluster of a type, so occupancy must be
// checked against e's own Pb tree, not the block type's arena at large).
func (l *Clusterer) moleculeFits(e *clusterEntry, stats *placement.Stats, m *atomnet.Molecule) bool {
	for _, site := range stats.SitesOfModel(m.Root.Model) {
		if pb, ok := e.cl.Lookup(site); !ok || pb.Atom == nil {
			return true
		}
	}

	return false
}

// transitiveFanoutPool BFS-expands from e's already-clustered atoms
// across their nets, up to depth 4, collecting still-unclustered
// neighbours not already a MarkBlock candidate (spec §4.6's fallback
// pool, supplementing the primary gain-connected tier).
func (l *Clusterer) transitiveFanoutPool(e *clusterEntry) []*atomnet.AtomBlock {
	const maxDepth = 4
	ignore := l.opts.highFanoutIgnore(e.blockType)

	visited := make(map[*atomnet.AtomBlock]bool)
	var frontier []*atomnet.AtomBlock
	for _, a := range e.atoms {
		visited[a] = true
		frontier = append(frontier, a)
	}

	var pool []*atomnet.AtomBlock
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []*atomnet.AtomBlock
		for _, a := range frontier {
			for _, pin := range a.Pins() {
				n := pin.Net
				if n == nil || n.Fanout() > ignore {
					continue
				}
				for _, b := range netBlocks(n) {
					if visited[b] {
						continue
					}
					visited[b] = true
					if l.atomCluster[b] == nil && !e.cl.Gain.BlockIsMarked(b) {
						pool = append(pool, b)
					}
					next = append(next, b)
				}
			}
		}
		frontier = next
	}

	return pool
}
