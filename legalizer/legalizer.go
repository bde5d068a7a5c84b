package legalizer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
	"github.com/katalvlaran/clusterpack/cluster"
	"github.com/katalvlaran/clusterpack/router"
)

// StartNewCluster opens a fresh Cluster of blockType, packs mol's atoms
// into it using "full" external pin-utilization targets, and — on
// success — assigns the cluster a stable id (spec §4.6 start_new_cluster).
func (l *Clusterer) StartNewCluster(mol *atomnet.Molecule, blockType string) (int, error) {
	bt, ok := l.types[blockType]
	if !ok {
		return 0, ErrUnknownBlockType
	}

	cl, err := cluster.NewCluster(bt.Root, bt.Fc, l.allNets, l.allAtoms, l.opts.RouterOptions)
	if err != nil {
		return 0, err
	}

	e := &clusterEntry{
		blockType: blockType,
		cl:        cl,
		nets:      make(map[*atomnet.AtomNet]*router.IntraLbNet),
	}

	l.stats[blockType].Reset()

	if err := l.tryPackMolecule(e, mol, fullPinUtilTarget); err != nil {
		return 0, err
	}

	l.nextID++
	e.id = l.nextID
	l.entries[e.id] = e

	if l.opts.LogVerbosity > 0 {
		fmt.Fprintf(l.opts.Log, "legalizer: opened cluster %d (%s) seeded by molecule %q\n", e.id, blockType, mol.ID)
	}

	return e.id, nil
}

// AddMolToCluster packs mol into the already-open cluster id, using that
// cluster's per-block-type target external pin-utilization (spec §4.6
// add_mol_to_cluster — stricter than "full" so later molecules do not
// steal all the external pins the seed expected).
func (l *Clusterer) AddMolToCluster(mol *atomnet.Molecule, id int) error {
	e, ok := l.entries[id]
	if !ok || e.destroyed {
		return ErrUnknownCluster
	}

	return l.TryPackMolecule(id, mol)
}

// TryPackMolecule runs the full critical path of spec §4.6 against the
// named cluster: long-chain filter, floorplan intersection, NoC-group
// unification, a loop over the placement enumerator, the optional
// pin-feasibility filter, and (per Options.DetailedRoutingStage) the
// intra-cluster router — with a full rollback of any speculative PB-tree,
// placement-stats, and pin-usage mutation on rejection (spec §5, P7).
func (l *Clusterer) TryPackMolecule(id int, mol *atomnet.Molecule) error {
	e, ok := l.entries[id]
	if !ok || e.destroyed {
		return ErrUnknownCluster
	}

	return l.tryPackMolecule(e, mol, l.opts.pinUtilTarget(e.blockType))
}

func (l *Clusterer) tryPackMolecule(e *clusterEntry, mol *atomnet.Molecule, target PinUtilTarget) error {
	if mol.IsLong && e.hasLongChain {
		return ErrLongChainConflict
	}

	region := e.cl.Floorplan
	for _, atom := range mol.Blocks {
		r, ok := cluster.Intersect(region, l.partitionOf(atom))
		if !ok {
			return ErrFloorplanViolation
		}
		region = r
	}

	noc := e.cl.NocGroup
	for _, atom := range mol.Blocks {
		g, ok := cluster.UnifyNocGroup(noc, l.nocGroupOf(atom))
		if !ok {
			return ErrNocGroupViolation
		}
		noc = g
	}

	stats := l.stats[e.blockType]
	occupied := func(n *arch.PbGraphNode) bool {
		pb, ok := e.cl.Lookup(n)

		return ok && pb.Atom != nil
	}

	var lastErr error
	for {
		p, ok := stats.GetNextPrimitiveList(mol, occupied)
		if !ok {
			if lastErr != nil {
				return lastErr
			}

			return ErrMoleculeUnplaceable
		}

		placedPbs := make([]*cluster.Pb, 0, len(p.Sites))
		placedAtoms := make([]*atomnet.AtomBlock, 0, len(p.Sites))
		var trialErr error

		for i, atom := range mol.Blocks {
			pb, err := l.placeAtomAtSite(e, p.Sites[i], atom)
			if err != nil {
				trialErr = err

				break
			}
			placedPbs = append(placedPbs, pb)
			placedAtoms = append(placedAtoms, atom)
		}

		if trialErr == nil && l.opts.EnablePinFeasibilityFilter {
			candidates := append(append([]*atomnet.AtomBlock(nil), e.atoms...), mol.Blocks...)
			if !l.pinFeasible(e, candidates, target) {
				trialErr = ErrPinFeasibilityViolated
			}
		}

		if trialErr == nil {
			if l.opts.DetailedRoutingStage == EachAtom {
				if err := l.routeMolecule(e, mol); err != nil {
					trialErr = err
				}
			} else {
				for _, n := range l.touchedNets(mol.Blocks) {
					if err := l.syncNet(e, n); err != nil {
						trialErr = err

						break
					}
				}
			}
		}

		if trialErr != nil {
			for _, atom := range placedAtoms {
				delete(l.atomCluster, atom)
				delete(l.atomSite, atom)
			}
			for _, pb := range placedPbs {
				e.cl.RemoveAtom(pb)
				e.cl.PruneDeadBranch(pb)
			}
			stats.MarkTried(p.Sites)
			for _, atom := range mol.Blocks {
				l.failures[atom]++
			}
			lastErr = trialErr

			continue
		}

		stats.CommitPrimitive(p)
		e.cl.Floorplan = region
		e.cl.NocGroup = noc
		e.atoms = append(e.atoms, mol.Blocks...)
		e.cl.Root.Pins.CommitLookahead()
		l.store.CommitMolecule(mol)

		if mol.Kind == atomnet.Chain {
			for i, b := range mol.Blocks {
				if b == mol.Root {
					mol.ChainID = p.Sites[i].PlacementIndex + 1

					break
				}
			}
			if mol.IsLong {
				e.hasLongChain = true
				e.longChainID = mol.ChainID
			}
		}

		for _, atom := range mol.Blocks {
			l.moleculeOf[atom] = mol
			l.markAndUpdatePartialGain(e, atom)
		}

		return nil
	}
}

// placeAtomAtSite materializes the PB-tree path from site up to the
// cluster root (lazily allocating and mode-committing ancestors, spec
// §4.6's try_place_atom_block_rec), checks the memory-sibling invariant
// if site's parent is a memory-class composite, and places atom.
func (l *Clusterer) placeAtomAtSite(e *clusterEntry, site *arch.PbGraphNode, atom *atomnet.AtomBlock) (*cluster.Pb, error) {
	pb, err := ensurePath(e.cl, site)
	if err != nil {
		return nil, err
	}

	if parent := pb.Parent; parent != nil && parent.Node.PbType.ClassMemory {
		if !memorySiblingFeasible(parent, site, atom) {
			return nil, ErrMemorySiblingConflict
		}
	}

	if err := e.cl.PlaceAtom(pb, atom); err != nil {
		return nil, err
	}

	l.atomCluster[atom] = e
	l.atomSite[atom] = site

	return pb, nil
}

// ensurePath walks from site up to the cluster root, calling EnsureChild
// at every composite ancestor (spec §4.6 try_place_atom_block_rec).
func ensurePath(c *cluster.Cluster, site *arch.PbGraphNode) (*cluster.Pb, error) {
	if site.Parent == nil {
		return c.Root, nil
	}

	parentPb, err := ensurePath(c, site.Parent)
	if err != nil {
		return nil, err
	}

	modeIdx, typeName := locateChild(site.Parent, site)
	if modeIdx < 0 {
		panic("legalizer: site not found under its declared architecture parent")
	}

	return c.EnsureChild(parentPb, modeIdx, typeName, site.PlacementIndex)
}

// locateChild finds which (mode, type) bucket of parent's ChildrenByMode
// holds child; every flattened child instance belongs to exactly one,
// since each mode owns its own independently-flattened child instances
// (mirrors placement.locate).
func locateChild(parent, child *arch.PbGraphNode) (modeIndex int, typeName string) {
	for mi, byType := range parent.ChildrenByMode {
		insts, ok := byType[child.PbType.Name]
		if ok && child.PlacementIndex < len(insts) && insts[child.PlacementIndex] == child {
			return mi, child.PbType.Name
		}
	}

	return -1, ""
}

// memorySiblingFeasible enforces invariant I4 / property P4: every
// non-data port pin of two primitives sharing a memory-class parent must
// carry the same AtomNet.
func memorySiblingFeasible(parent *cluster.Pb, site *arch.PbGraphNode, atom *atomnet.AtomBlock) bool {
	for _, port := range site.PbType.Ports {
		if port.Class == arch.PinClassData {
			continue
		}
		want := portNets(atom, port.Name)

		for _, insts := range parent.ChildrenByType {
			for _, sib := range insts {
				if sib == nil || sib.Atom == nil || sib.Atom == atom {
					continue
				}
				if !netsEqual(want, portNets(sib.Atom, port.Name)) {
					return false
				}
			}
		}
	}

	return true
}

func portNets(atom *atomnet.AtomBlock, portName string) []*atomnet.AtomNet {
	for _, p := range atom.Ports {
		if p.Name != portName {
			continue
		}
		nets := make([]*atomnet.AtomNet, len(p.Pins))
		for i, pin := range p.Pins {
			nets[i] = pin.Net
		}

		return nets
	}

	return nil
}

func netsEqual(a, b []*atomnet.AtomNet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// pinFeasible re-populates the cluster root's lookahead pin-class usage
// from candidateAtoms and rejects if any class would exceed its scaled
// capacity (spec §4.6's pin-feasibility filter). Clock pins are bucketed
// with data-direction inputs since PinUsage tracks direction, not
// direction+clock; clock/data separation is expressed through the
// architecture author's PinClass choice on the port itself (see
// DESIGN.md). Each external net is counted once per class and direction,
// however many candidate atom pins it touches.
func (l *Clusterer) pinFeasible(e *clusterEntry, candidateAtoms []*atomnet.AtomBlock, target PinUtilTarget) bool {
	root := e.cl.Root
	root.Pins.ResetLookahead()

	inCluster := make(map[*atomnet.AtomBlock]bool, len(candidateAtoms))
	for _, a := range candidateAtoms {
		inCluster[a] = true
	}

	type netUse struct {
		net   *atomnet.AtomNet
		class arch.PinClass
		out   bool
	}
	counted := make(map[netUse]bool)

	var lookIn, lookOut [arch.PinClassOther + 1]int
	for _, atom := range candidateAtoms {
		site := l.atomSite[atom]
		if site == nil {
			continue
		}
		for _, p := range atom.Pins() {
			if p.Net == nil {
				continue
			}
			pin := site.Pin(p.Port, p.Index)
			if pin == nil {
				continue
			}
			if !netLeavesCluster(inCluster, p.Net) {
				continue
			}
			k := netUse{p.Net, pin.Port.Class, p.Kind == atomnet.PinDriver}
			if counted[k] {
				continue
			}
			counted[k] = true
			if p.Kind == atomnet.PinDriver {
				lookOut[pin.Port.Class]++
			} else {
				lookIn[pin.Port.Class]++
			}
		}
	}
	root.Pins.LookaheadInput = lookIn
	root.Pins.LookaheadOutput = lookOut

	for c := arch.PinClassData; c <= arch.PinClassOther; c++ {
		capIn := classCapacity(root.Node, arch.DirIn, c) + classCapacity(root.Node, arch.DirClock, c)
		limitIn := int(float64(capIn) * target.Input)
		if limitIn < root.Pins.InputUsed[c] {
			limitIn = root.Pins.InputUsed[c]
		}
		if lookIn[c] > limitIn {
			return false
		}

		capOut := classCapacity(root.Node, arch.DirOut, c)
		limitOut := int(float64(capOut) * target.Output)
		if limitOut < root.Pins.OutputUsed[c] {
			limitOut = root.Pins.OutputUsed[c]
		}
		if lookOut[c] > limitOut {
			return false
		}
	}

	return true
}

func netLeavesCluster(inCluster map[*atomnet.AtomBlock]bool, n *atomnet.AtomNet) bool {
	db := n.DriverBlock()
	if db == nil || !inCluster[db] {
		return true
	}
	for _, s := range n.Sinks {
		if !inCluster[s.Block] {
			return true
		}
	}

	return false
}

func classCapacity(root *arch.PbGraphNode, dir arch.Direction, class arch.PinClass) int {
	total := 0
	for _, port := range root.PbType.Ports {
		if port.Dir == dir && port.Class == class {
			total += port.Width
		}
	}

	return total
}

// touchedNets returns every distinct AtomNet any pin of atoms belongs to.
func (l *Clusterer) touchedNets(atoms []*atomnet.AtomBlock) []*atomnet.AtomNet {
	seen := make(map[*atomnet.AtomNet]bool)
	var nets []*atomnet.AtomNet
	for _, a := range atoms {
		for _, p := range a.Pins() {
			if p.Net != nil && !seen[p.Net] {
				seen[p.Net] = true
				nets = append(nets, p.Net)
			}
		}
	}

	return nets
}

// routeMolecule syncs every net mol's atoms touch into the cluster's
// router and re-runs the negotiated-congestion loop over the whole
// cluster (spec §4.6 "if placement is full detailed: call the
// intra-cluster router").
func (l *Clusterer) routeMolecule(e *clusterEntry, mol *atomnet.Molecule) error {
	for _, n := range l.touchedNets(mol.Blocks) {
		if err := l.syncNet(e, n); err != nil {
			return err
		}
	}

	return e.cl.Route()
}

// syncNet (re)builds n's terminal set from the atoms currently resident
// in e: a net with every endpoint inside the cluster is fully absorbed;
// one whose driver or any sink lies elsewhere routes through the
// synthetic boundary node exactly once (spec §4.1/§4.5, property P5).
func (l *Clusterer) syncNet(e *clusterEntry, n *atomnet.AtomNet) error {
	g := e.cl.Graph()

	driverBlock := n.DriverBlock()
	driverInternal := driverBlock != nil && l.atomCluster[driverBlock] == e
	driverRR := g.ExtSrc
	if driverInternal {
		driverRR = l.atomSite[driverBlock].Pin(n.Driver.Port, n.Driver.Index).Index
	}

	terms := []int{driverRR}
	needExtSink := false
	for _, sink := range n.Sinks {
		if l.atomCluster[sink.Block] == e {
			terms = append(terms, l.atomSite[sink.Block].Pin(sink.Port, sink.Index).Index)
		} else {
			needExtSink = true
		}
	}
	if needExtSink {
		terms = append(terms, g.ExtSink)
	}

	if rl, ok := e.nets[n]; ok {
		rl.Terminals = terms

		return nil
	}

	rl := &router.IntraLbNet{AtomNet: n, Terminals: terms}
	if err := e.cl.RegisterNet(rl); err != nil {
		return err
	}
	e.nets[n] = rl

	return nil
}

// DestroyCluster reverts every atom of every molecule in the cluster,
// drops its router and PB-tree state, and invalidates id (spec §4.6
// destroy_cluster).
func (l *Clusterer) DestroyCluster(id int) error {
	e, ok := l.entries[id]
	if !ok || e.destroyed {
		return ErrUnknownCluster
	}

	atoms := append([]*atomnet.AtomBlock(nil), e.atoms...)
	for _, a := range atoms {
		delete(l.atomCluster, a)
		delete(l.atomSite, a)
		delete(l.moleculeOf, a)
	}
	l.store.RevalidateAtoms(atoms, func(a *atomnet.AtomBlock) bool {
		return l.atomCluster[a] == nil
	})

	e.destroyed = true
	delete(l.entries, id)

	if l.opts.LogVerbosity > 0 {
		fmt.Fprintf(l.opts.Log, "legalizer: destroyed cluster %d, released %d atoms\n", id, len(atoms))
	}

	return nil
}

// Compress compacts the cluster vector, remapping every surviving
// cluster to a dense, stable id range starting at 1 (spec §4.6 compress).
func (l *Clusterer) Compress() {
	old := l.entries
	ids := make([]int, 0, len(old))
	for id := range old {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	l.entries = make(map[int]*clusterEntry, len(old))
	next := 1
	for _, id := range ids {
		e := old[id]
		e.id = next
		l.entries[next] = e
		next++
	}
	l.nextID = next - 1
}

// CleanCluster produces the cluster's exported record from the router's
// saved nets (spec §4.6 clean_cluster). When routing was deferred to
// end-of-cluster, this is where it finally runs.
func (l *Clusterer) CleanCluster(id int) (ClusterRecord, error) {
	e, ok := l.entries[id]
	if !ok || e.destroyed {
		return ClusterRecord{}, ErrUnknownCluster
	}

	if l.opts.DetailedRoutingStage == EndOfCluster {
		if err := e.cl.Route(); err != nil {
			return ClusterRecord{}, err
		}
	}

	return ClusterRecord{
		ID:        e.id,
		BlockType: e.blockType,
		Mode:      e.cl.Root.Mode,
		PbRoute:   e.cl.Clean(),
		Atoms:     append([]*atomnet.AtomBlock(nil), e.atoms...),
		Floorplan: e.cl.Floorplan,
		NocGroup:  e.cl.NocGroup,
	}, nil
}

// Verify sanity-checks every live cluster: no atom is claimed by more
// than one cluster, every atom's recorded site still holds it in that
// cluster's PB tree, and every composite PB with a committed mode has at
// least one live child (spec §4.6 verify, properties P1/P3). Atoms that
// belong to no live cluster are not reported.
func (l *Clusterer) Verify() error {
	seen := make(map[*atomnet.AtomBlock]int)
	for id, e := range l.entries {
		if e.destroyed {
			continue
		}

		for _, a := range e.atoms {
			if other, ok := seen[a]; ok {
				return fmt.Errorf("legalizer: atom %q claimed by clusters %d and %d", a.Name, other, id)
			}
			seen[a] = id

			site, ok := l.atomSite[a]
			if !ok {
				return fmt.Errorf("legalizer: atom %q has no recorded site", a.Name)
			}
			pb, ok := e.cl.Lookup(site)
			if !ok || pb.Atom != a {
				return fmt.Errorf("legalizer: atom %q back-pointer mismatch in cluster %d", a.Name, id)
			}
		}

		if err := verifyPbTree(e.cl.Root); err != nil {
			return fmt.Errorf("cluster %d: %w", id, err)
		}
	}

	return nil
}

var errDeadMode = errors.New("legalizer: composite pb has a committed mode but no live child")

func verifyPbTree(pb *cluster.Pb) error {
	if pb.IsPrimitive() || pb.Mode == -1 {
		return nil
	}

	live := 0
	for _, insts := range pb.ChildrenByType {
		for _, c := range insts {
			if c == nil {
				continue
			}
			live++
			if err := verifyPbTree(c); err != nil {
				return err
			}
		}
	}
	if live == 0 {
		return errDeadMode
	}

	return nil
}
