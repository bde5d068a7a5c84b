package cluster

import (
	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
	"github.com/katalvlaran/clusterpack/router"
	"github.com/katalvlaran/clusterpack/rrgraph"
)

// Cluster is one cluster-under-construction: a single root Pb instance
// plus the lazily-grown tree of its descendants, the RR graph of its
// block type (NewCluster builds a separate one for every cluster; it is
// not shared between clusters of the same type), and the router.State that
// proves the currently placed atoms can be interconnected (spec §3, §4.5,
// §4.6).
type Cluster struct {
	Root *Pb
	pbs  map[*arch.PbGraphNode]*Pb

	Gain      *GainState
	Floorplan Region
	NocGroup  int
	Molecules []*atomnet.Molecule

	router *router.State
	rrg    *rrgraph.Graph
}

// NewCluster opens a new, empty cluster over the block type flattened at
// rootType, with boundary connectivity fc. nets/atoms size the cluster's
// GainState to the whole netlist (spec §4.6 step b: "open a new cluster").
func NewCluster(rootType *arch.PbGraphNode, fc []arch.TypeFcSpec, nets []*atomnet.AtomNet, atoms []*atomnet.AtomBlock, opts router.Options) (*Cluster, error) {
	g, err := rrgraph.Build(rootType, fc)
	if err != nil {
		return nil, err
	}

	root := &Pb{Node: rootType, Mode: -1, ChildrenByType: make(map[string][]*Pb)}

	return &Cluster{
		Root:      root,
		pbs:       map[*arch.PbGraphNode]*Pb{rootType: root},
		Gain:      NewGainState(nets, atoms),
		Floorplan: UnconstrainedRegion(),
		NocGroup:  InvalidNocGroup,
		router:    router.NewState(g, opts),
		rrg:       g,
	}, nil
}

// Graph returns the RR graph shared by every Pb instance in this cluster.
func (c *Cluster) Graph() *rrgraph.Graph { return c.rrg }

// Lookup returns the live Pb occupying architecture site, if any.
func (c *Cluster) Lookup(site *arch.PbGraphNode) (*Pb, bool) {
	pb, ok := c.pbs[site]

	return pb, ok
}

// EnsureChild returns the child Pb at (parent, typeName, instance) under
// mode modeIdx, allocating it on first touch. parent's mode is committed
// to modeIdx on the first child placed under it; a later call naming a
// different mode fails with ErrModeConflict (spec §7).
func (c *Cluster) EnsureChild(parent *Pb, modeIdx int, typeName string, instance int) (*Pb, error) {
	if parent.IsPrimitive() {
		return nil, ErrNotComposite
	}
	if parent.Mode != -1 && parent.Mode != modeIdx {
		return nil, ErrModeConflict
	}

	insts, ok := parent.Node.ChildrenByMode[modeIdx][typeName]
	if !ok {
		return nil, ErrNoSuchChildType
	}
	if instance < 0 || instance >= len(insts) {
		return nil, ErrInstanceOutOfRange
	}

	if parent.Mode == -1 {
		parent.Mode = modeIdx
		c.router.SetActiveMode(parent.Node, modeIdx)
	}

	slice, ok := parent.ChildrenByType[typeName]
	if !ok {
		slice = make([]*Pb, len(insts))
		parent.ChildrenByType[typeName] = slice
	}

	if slice[instance] == nil {
		site := insts[instance]
		child := &Pb{Node: site, Parent: parent, Mode: -1, ChildrenByType: make(map[string][]*Pb)}
		slice[instance] = child
		c.pbs[site] = child
	}

	return slice[instance], nil
}

// PlaceAtom assigns atom to the primitive pb. Calling it again with the
// same atom is a no-op; with a different atom it fails with
// ErrAtomAlreadyPlaced.
func (c *Cluster) PlaceAtom(pb *Pb, atom *atomnet.AtomBlock) error {
	if !pb.IsPrimitive() {
		return ErrNotPrimitive
	}
	if pb.Atom != nil && pb.Atom != atom {
		return ErrAtomAlreadyPlaced
	}
	pb.Atom = atom

	return nil
}

// RemoveAtom clears pb's placed atom, leaving the Pb itself in the tree
// (callers needing full rollback follow with PruneDeadBranch).
func (c *Cluster) RemoveAtom(pb *Pb) { pb.Atom = nil }

// hasLiveAtom reports whether pb or any of its descendants currently
// holds an atom.
func hasLiveAtom(pb *Pb) bool {
	if pb.IsPrimitive() {
		return pb.Atom != nil
	}
	for _, insts := range pb.ChildrenByType {
		for _, child := range insts {
			if child != nil && hasLiveAtom(child) {
				return true
			}
		}
	}

	return false
}

// allChildrenEmpty reports whether every declared child slot of pb is
// currently unallocated.
func allChildrenEmpty(pb *Pb) bool {
	for _, insts := range pb.ChildrenByType {
		for _, child := range insts {
			if child != nil {
				return false
			}
		}
	}

	return true
}

// unlinkChild clears child's slot in parent.ChildrenByType.
func unlinkChild(parent, child *Pb) {
	insts := parent.ChildrenByType[child.Node.PbType.Name]
	for i, c := range insts {
		if c == child {
			insts[i] = nil

			return
		}
	}
}

// PruneDeadBranch removes pb, and any ancestor left with no live
// descendant, from the tree — the rollback counterpart to EnsureChild
// when a trial placement fails and must be undone (spec §4.6's
// revert-on-failure path). A parent left with no children at all has its
// mode reopened (ErrModeConflict no longer applies to a future,
// differently-moded child).
func (c *Cluster) PruneDeadBranch(pb *Pb) {
	cur := pb
	for cur != nil && cur != c.Root && !hasLiveAtom(cur) {
		parent := cur.Parent
		unlinkChild(parent, cur)
		delete(c.pbs, cur.Node)

		if allChildrenEmpty(parent) {
			parent.Mode = -1
			parent.ChildrenByType = make(map[string][]*Pb)
			c.router.ClearActiveMode(parent.Node)
		}

		cur = parent
	}
}

// RegisterNet adds an intra-cluster net to this cluster's router.
func (c *Cluster) RegisterNet(net *router.IntraLbNet) error { return c.router.RegisterNet(net) }

// Route runs the negotiated-congestion router over every net registered
// so far, proving (or disproving) that the current atom assignment is
// legally interconnectable (spec §4.5).
func (c *Cluster) Route() error { return c.router.Route() }

// Clean collapses every registered net's committed route tree into a
// single rr-node→net occupancy map, the final pb_route this cluster
// exports once accepted (spec §4.5/§4.6's post-success cleanup).
func (c *Cluster) Clean() map[int]*atomnet.AtomNet {
	routes := make(map[int]*atomnet.AtomNet)
	for _, net := range c.router.Nets() {
		if net.RouteTree == nil {
			continue
		}
		for _, n := range net.RouteTree.Nodes {
			routes[n] = net.AtomNet
		}
	}

	return routes
}
