package legalizer

import (
	"errors"
	"io"

	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
	"github.com/katalvlaran/clusterpack/cluster"
	"github.com/katalvlaran/clusterpack/placement"
	"github.com/katalvlaran/clusterpack/router"
)

// Sentinel errors for the legalizer (spec §7's error-kind surface).
var (
	// ErrMoleculeUnplaceable indicates no free primitive site exists in
	// this cluster for the molecule; fatal to this (molecule, cluster)
	// pair, the caller decides whether to try another cluster or open a
	// new one.
	ErrMoleculeUnplaceable = errors.New("legalizer: no feasible placement for molecule in this cluster")

	// ErrPinFeasibilityViolated indicates the lookahead pin-class
	// utilization would exceed the cluster's scaled limit.
	ErrPinFeasibilityViolated = errors.New("legalizer: pin-class utilization would exceed cluster limit")

	// ErrFloorplanViolation indicates the molecule's atoms do not all fit
	// within the cluster's current floorplan region.
	ErrFloorplanViolation = errors.New("legalizer: molecule floorplan region does not intersect cluster region")

	// ErrNocGroupViolation indicates an atom's NoC group conflicts with
	// the cluster's already-committed group.
	ErrNocGroupViolation = errors.New("legalizer: atom noc group conflicts with cluster noc group")

	// ErrLongChainConflict indicates the cluster has already absorbed a
	// long chain molecule and this molecule is also a long chain (spec
	// §4.6 step a names the check; the specific failure kind is this
	// package's own, since §7 does not name one for it). Chain identity is
	// not compared: any second long-chain molecule is rejected.
	ErrLongChainConflict = errors.New("legalizer: cluster already committed to a long chain")

	// ErrMemorySiblingConflict indicates a memory-class PB's non-data
	// port nets disagree between sibling primitives (spec invariant I4,
	// testable property P4).
	ErrMemorySiblingConflict = errors.New("legalizer: memory sibling pb requires identical non-data port nets")

	// ErrUnknownCluster indicates a cluster id was not found (already
	// destroyed, or never allocated).
	ErrUnknownCluster = errors.New("legalizer: unknown cluster id")

	// ErrUnknownBlockType indicates a block-type name was not registered
	// with NewClusterer.
	ErrUnknownBlockType = errors.New("legalizer: unknown block type")
)

// RoutingStage selects when try_pack_molecule invokes the intra-cluster
// router (spec §6 detailed_routing_stage).
type RoutingStage uint8

const (
	// EachAtom routes after every molecule is tentatively placed, so a
	// routing failure is caught (and rolled back) immediately.
	EachAtom RoutingStage = iota
	// EndOfCluster defers routing until the cluster is cleaned (a
	// destroyed cluster is never routed); molecules pack on placement/pin-feasibility feasibility
	// alone, at the cost of discovering RoutingInfeasible late.
	EndOfCluster
)

// SeedPolicy selects the ranking key get_highest_gain_molecule's seed
// pass uses (spec §4.6).
type SeedPolicy uint8

const (
	// SeedBlend combines criticality with the atom's input-pin ratio
	// (its input pins over the largest molecule external-input count),
	// 0.5/0.5. Molecule size is not a factor.
	SeedBlend SeedPolicy = iota
	// SeedTiming ranks purely by block criticality.
	SeedTiming
	// SeedMaxInputs ranks purely by the atom's own input-pin ratio; the
	// molecule's external-input count is not used.
	SeedMaxInputs
)

// PinUtilTarget is a per-block-type external pin-utilization target
// (spec §6), a fraction in [0,1] of each class's physical pin capacity.
type PinUtilTarget struct {
	Input  float64
	Output float64
}

// fullPinUtilTarget is used by StartNewCluster regardless of the
// configured per-type target (spec §4.6 step "start_new_cluster ...
// full external pin-util targets").
var fullPinUtilTarget = PinUtilTarget{Input: 1, Output: 1}

// Options configures one Clusterer (spec §6's packer flags).
type Options struct {
	AllowUnrelatedClustering   bool
	BalanceBlockTypeUtil       bool
	EnablePinFeasibilityFilter bool
	DetailedRoutingStage       RoutingStage
	SeedPolicy                 SeedPolicy

	// HighFanoutNetIgnore overrides DefaultHighFanoutNetIgnore per block
	// type (spec §9 open question: "thresholds as per-type configuration").
	HighFanoutNetIgnore        map[string]int
	DefaultHighFanoutNetIgnore int

	// MaxAtomFailures deprioritizes an atom as a gain candidate once its
	// failure counter reaches this ceiling (supplemented from
	// cluster_legalizer.cpp's history-based eviction, see SPEC_FULL.md).
	MaxAtomFailures int

	// PinUtilTarget overrides DefaultPinUtilTarget per block type; used
	// by AddMolToCluster (StartNewCluster always uses "full").
	PinUtilTarget        map[string]PinUtilTarget
	DefaultPinUtilTarget PinUtilTarget

	RouterOptions router.Options

	LogVerbosity int
	Log          io.Writer
}

// Option is a functional option for Options, matching the teacher's
// dijkstra.Option / flow.FlowOption shape.
type Option func(*Options)

// DefaultOptions returns the baseline configuration: pin-feasibility
// filtering on, routing checked after every molecule, blend-ranked seed
// selection, a 64-net high-fanout ignore threshold, and a 90% default
// external pin-utilization target.
func DefaultOptions() Options {
	return Options{
		EnablePinFeasibilityFilter: true,
		DetailedRoutingStage:       EachAtom,
		SeedPolicy:                 SeedBlend,
		HighFanoutNetIgnore:        make(map[string]int),
		DefaultHighFanoutNetIgnore: 64,
		MaxAtomFailures:            3,
		PinUtilTarget:              make(map[string]PinUtilTarget),
		DefaultPinUtilTarget:       PinUtilTarget{Input: 0.9, Output: 0.9},
		RouterOptions:              router.DefaultOptions(),
		LogVerbosity:               0,
		Log:                        io.Discard,
	}
}

// NewOptions applies opts on top of DefaultOptions.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// WithAllowUnrelatedClustering toggles the fanin-index fallback once
// gain-connected and transitive-fanout candidates are exhausted.
func WithAllowUnrelatedClustering(v bool) Option {
	return func(o *Options) { o.AllowUnrelatedClustering = v }
}

// WithBalanceBlockTypeUtil toggles preferring under-utilized block types
// during seed selection.
func WithBalanceBlockTypeUtil(v bool) Option {
	return func(o *Options) { o.BalanceBlockTypeUtil = v }
}

// WithEnablePinFeasibilityFilter toggles the lookahead pin-class check.
func WithEnablePinFeasibilityFilter(v bool) Option {
	return func(o *Options) { o.EnablePinFeasibilityFilter = v }
}

// WithDetailedRoutingStage sets when the router runs during packing.
func WithDetailedRoutingStage(s RoutingStage) Option {
	return func(o *Options) { o.DetailedRoutingStage = s }
}

// WithSeedPolicy sets the seed-ranking key.
func WithSeedPolicy(p SeedPolicy) Option {
	return func(o *Options) { o.SeedPolicy = p }
}

// WithHighFanoutNetIgnore overrides the ignore threshold for one block
// type; panics if n is negative.
func WithHighFanoutNetIgnore(blockType string, n int) Option {
	return func(o *Options) {
		if n < 0 {
			panic("legalizer: HighFanoutNetIgnore must be non-negative")
		}
		if o.HighFanoutNetIgnore == nil {
			o.HighFanoutNetIgnore = make(map[string]int)
		}
		o.HighFanoutNetIgnore[blockType] = n
	}
}

// WithDefaultHighFanoutNetIgnore sets the fallback ignore threshold used
// by block types with no per-type override.
func WithDefaultHighFanoutNetIgnore(n int) Option {
	return func(o *Options) { o.DefaultHighFanoutNetIgnore = n }
}

// WithMaxAtomFailures sets the failure-counter ceiling past which an atom
// stops being offered as a gain candidate; panics if n <= 0.
func WithMaxAtomFailures(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			panic("legalizer: MaxAtomFailures must be positive")
		}
		o.MaxAtomFailures = n
	}
}

// WithPinUtilTarget overrides the external pin-utilization target for
// one block type; panics if either fraction is outside [0,1].
func WithPinUtilTarget(blockType string, t PinUtilTarget) Option {
	return func(o *Options) {
		if t.Input < 0 || t.Input > 1 || t.Output < 0 || t.Output > 1 {
			panic("legalizer: PinUtilTarget fractions must lie in [0,1]")
		}
		if o.PinUtilTarget == nil {
			o.PinUtilTarget = make(map[string]PinUtilTarget)
		}
		o.PinUtilTarget[blockType] = t
	}
}

// WithDefaultPinUtilTarget sets the fallback target used by block types
// with no per-type override.
func WithDefaultPinUtilTarget(t PinUtilTarget) Option {
	return func(o *Options) { o.DefaultPinUtilTarget = t }
}

// WithRouterOptions overrides the PathFinder coefficients every cluster's
// router is built with.
func WithRouterOptions(r router.Options) Option {
	return func(o *Options) { o.RouterOptions = r }
}

// WithLog sets the destination and verbosity for progress output; w must
// be non-nil (use io.Discard to silence).
func WithLog(w io.Writer, verbosity int) Option {
	return func(o *Options) {
		if w == nil {
			panic("legalizer: WithLog writer must not be nil")
		}
		o.Log = w
		o.LogVerbosity = verbosity
	}
}

func (o *Options) highFanoutIgnore(blockType string) int {
	if n, ok := o.HighFanoutNetIgnore[blockType]; ok {
		return n
	}

	return o.DefaultHighFanoutNetIgnore
}

func (o *Options) pinUtilTarget(blockType string) PinUtilTarget {
	if t, ok := o.PinUtilTarget[blockType]; ok {
		return t
	}

	return o.DefaultPinUtilTarget
}

// BlockType names one clusterable architecture root: its flattened
// pb-graph and the boundary connectivity the RR-graph builder uses.
type BlockType struct {
	Name string
	Root *arch.PbGraphNode
	Fc   []arch.TypeFcSpec
}

// ClusterRecord is one finished cluster's exported view (spec §6
// outputs): block type, mode, pb_route, contained atoms, floorplan
// region, and NoC group.
type ClusterRecord struct {
	ID        int
	BlockType string
	Mode      int
	PbRoute   map[int]*atomnet.AtomNet
	Atoms     []*atomnet.AtomBlock
	Floorplan cluster.Region
	NocGroup  int
}

// clusterEntry is the legalizer's private bookkeeping for one
// in-progress or committed cluster.
type clusterEntry struct {
	id        int
	blockType string
	cl        *cluster.Cluster
	atoms     []*atomnet.AtomBlock

	longChainID  int
	hasLongChain bool

	// nets caches the router.IntraLbNet already registered for a given
	// AtomNet, so a later molecule touching the same net mutates its
	// Terminals in place instead of re-registering.
	nets map[*atomnet.AtomNet]*router.IntraLbNet

	destroyed bool
}

// Clusterer is the top-level §4.6 driver: committed clusters with stable
// ids, atom→cluster and molecule→cluster maps, per-type placement stats,
// and the seed/gain bookkeeping shared across the whole run.
type Clusterer struct {
	opts Options

	types map[string]BlockType
	stats map[string]*placement.Stats

	store       *atomnet.Store
	allNets     []*atomnet.AtomNet
	allAtoms    []*atomnet.AtomBlock
	failures    map[*atomnet.AtomBlock]int

	entries  map[int]*clusterEntry
	nextID   int

	atomCluster  map[*atomnet.AtomBlock]*clusterEntry
	atomSite     map[*atomnet.AtomBlock]*arch.PbGraphNode
	moleculeOf   map[*atomnet.AtomBlock]*atomnet.Molecule

	// faninIndex backs the "allow unrelated clustering" fallback tier of
	// GetHighestGainMolecule; built lazily on first use since most runs
	// never exhaust the gain-connected tiers.
	faninIndex *atomnet.FaninIndex

	// PartitionOf / NocGroupOf are external collaborators (spec §6):
	// atom → floorplan partition region, atom → NoC group id. Both
	// default to "unconstrained" when nil.
	PartitionOf func(*atomnet.AtomBlock) cluster.Region
	NocGroupOf  func(*atomnet.AtomBlock) int

	// Criticality supplies a block's setup-timing criticality in [0,1]
	// for the "blend" and "timing" seed-ranking policies (spec §4.6);
	// timing analysis itself is out of scope (spec §1 non-goals), so
	// callers inject precomputed values. nil means every block scores 0.
	Criticality func(*atomnet.AtomBlock) float64
}

// NewClusterer builds an empty Clusterer over the given block types and
// netlist universe (nets/atoms size every cluster's GainState, spec
// §4.6's "open a new cluster" / cluster.NewCluster contract).
func NewClusterer(types []BlockType, store *atomnet.Store, nets []*atomnet.AtomNet, atoms []*atomnet.AtomBlock, opts Options) *Clusterer {
	byName := make(map[string]BlockType, len(types))
	stats := make(map[string]*placement.Stats, len(types))
	for _, t := range types {
		byName[t.Name] = t
		stats[t.Name] = placement.NewStats(t.Root)
	}

	return &Clusterer{
		opts:        opts,
		types:       byName,
		stats:       stats,
		store:       store,
		allNets:     nets,
		allAtoms:    atoms,
		failures:    make(map[*atomnet.AtomBlock]int),
		entries:     make(map[int]*clusterEntry),
		atomCluster: make(map[*atomnet.AtomBlock]*clusterEntry),
		atomSite:    make(map[*atomnet.AtomBlock]*arch.PbGraphNode),
		moleculeOf:  make(map[*atomnet.AtomBlock]*atomnet.Molecule),
	}
}

func (l *Clusterer) partitionOf(a *atomnet.AtomBlock) cluster.Region {
	if l.PartitionOf == nil {
		return cluster.UnconstrainedRegion()
	}

	return l.PartitionOf(a)
}

func (l *Clusterer) nocGroupOf(a *atomnet.AtomBlock) int {
	if l.NocGroupOf == nil {
		return cluster.InvalidNocGroup
	}

	return l.NocGroupOf(a)
}

// TypeUsage returns the number of committed clusters per block type
// (supplemented from output_clustering.cpp's usage summary, see
// SPEC_FULL.md).
func (l *Clusterer) TypeUsage() map[string]int {
	usage := make(map[string]int)
	for _, e := range l.entries {
		if e.destroyed {
			continue
		}
		usage[e.blockType]++
	}

	return usage
}
