package cluster

import (
	"errors"

	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
)

// Sentinel errors for PB-tree construction and mutation.
var (
	// ErrNotComposite indicates EnsureChild was called on a primitive PB.
	ErrNotComposite = errors.New("cluster: cannot add a child to a primitive pb")

	// ErrModeConflict indicates a composite PB's mode was already set to a
	// different mode than the one the caller now requires (spec §7
	// ModeConflict).
	ErrModeConflict = errors.New("cluster: pb already committed to a different mode")

	// ErrNoSuchChildType indicates the requested child type does not exist
	// under the parent's active (or to-be-set) mode.
	ErrNoSuchChildType = errors.New("cluster: no such child type under this mode")

	// ErrInstanceOutOfRange indicates a child instance index beyond that
	// type's declared count.
	ErrInstanceOutOfRange = errors.New("cluster: child instance index out of range")

	// ErrAtomAlreadyPlaced indicates PlaceAtom was called on a primitive PB
	// that already holds a different atom.
	ErrAtomAlreadyPlaced = errors.New("cluster: primitive pb already holds an atom")

	// ErrNotPrimitive indicates PlaceAtom was called on a composite PB.
	ErrNotPrimitive = errors.New("cluster: cannot place an atom on a composite pb")
)

// Pb is one physical-block instance in the cluster's instance tree. A
// cluster is exactly one instantiation of its root PbGraphNode's site
// tree (arch.Flatten runs once per block type), so every live Pb is
// keyed by the *arch.PbGraphNode site it occupies — a bijection that
// lets Cluster.pbs use architecture pointers directly as arena keys
// instead of a separately allocated index scheme, while still avoiding
// any Pb→Pb ownership cycle (a child only ever points up via Parent).
type Pb struct {
	Node   *arch.PbGraphNode
	Parent *Pb
	Mode   int // -1 until the first child is placed under this composite
	Atom   *atomnet.AtomBlock // non-nil only on a primitive that holds an atom

	// ChildrenByType[typeName][instanceIndex] is the live child Pb at that
	// site, or nil if not yet allocated. The slice length is fixed at
	// first touch of typeName to the active mode's declared instance count.
	ChildrenByType map[string][]*Pb

	// Pins is a lazily-populated per-composite pin-usage accounting
	// structure; allocated on first use by the legalizer's pin-feasibility
	// filter (spec §4.6). Gain bookkeeping (marked nets/blocks, gain
	// vectors) is deliberately NOT duplicated at every composite level —
	// it lives once on the Cluster itself (see GainState, DESIGN.md).
	Pins PinUsage
}

// IsPrimitive reports whether this Pb instantiates a primitive PbType.
func (p *Pb) IsPrimitive() bool { return p.Node.IsPrimitive() }

// PinUsage tracks committed and speculative ("lookahead") external pin
// counts by class for one composite PB (spec §3 PbStats).
type PinUsage struct {
	InputUsed  [arch.PinClassOther + 1]int
	OutputUsed [arch.PinClassOther + 1]int

	LookaheadInput  [arch.PinClassOther + 1]int
	LookaheadOutput [arch.PinClassOther + 1]int
}

// ResetLookahead copies the committed counts into the lookahead counts,
// the starting point for a fresh speculative trial (spec §4.6,
// try_pack_molecule step "reset lookahead_* and re-populate").
func (u *PinUsage) ResetLookahead() {
	u.LookaheadInput = u.InputUsed
	u.LookaheadOutput = u.OutputUsed
}

// CommitLookahead copies the speculative counts back into the committed
// counts, called only once a trial molecule is accepted.
func (u *PinUsage) CommitLookahead() {
	u.InputUsed = u.LookaheadInput
	u.OutputUsed = u.LookaheadOutput
}
