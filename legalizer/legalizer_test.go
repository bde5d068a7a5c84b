package legalizer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
	"github.com/katalvlaran/clusterpack/cluster"
	"github.com/katalvlaran/clusterpack/legalizer"
)

// fourBleClb builds a clb with nBLE independent 1-LUT BLEs, each fed
// from the whole of the clb's "in" bus and driving its own pin of the
// "out" bus (the placement package's fixture of the same name has the
// same block types but no edges).
func fourBleClb(t *testing.T, nBLE int) *arch.PbGraphNode {
	t.Helper()

	ble := &arch.PbType{
		Name:  "ble",
		Model: ".lut",
		Ports: []arch.Port{
			{Name: "in", Dir: arch.DirIn, Width: 4, Equiv: arch.EquivFull},
			{Name: "out", Dir: arch.DirOut, Width: 1},
		},
	}

	edges := make([]arch.InterconnectEdge, 0, 2*nBLE)
	for i := 0; i < nBLE; i++ {
		edges = append(edges,
			arch.InterconnectEdge{
				From: arch.PortRef{Port: "in", Pin: -1},
				To:   arch.PortRef{Block: "ble", Index: i, Port: "in", Pin: -1},
			},
			arch.InterconnectEdge{
				From: arch.PortRef{Block: "ble", Index: i, Port: "out", Pin: -1},
				To:   arch.PortRef{Port: "out", Pin: i},
			},
		)
	}

	clb := &arch.PbType{
		Name: "clb",
		Ports: []arch.Port{
			{Name: "in", Dir: arch.DirIn, Width: 4 * nBLE},
			{Name: "out", Dir: arch.DirOut, Width: nBLE},
		},
		Modes: []*arch.Mode{{
			Name:     "default",
			Children: []arch.ChildSpec{{Type: ble, Count: nBLE}},
			Edges:    edges,
		}},
	}

	root, err := arch.Flatten(clb)
	require.NoError(t, err)

	return root
}

func clbFc() []arch.TypeFcSpec {
	return []arch.TypeFcSpec{{Port: "in", Fc: 1}, {Port: "out", Fc: 1}}
}

func singletonLUT(id string) *atomnet.Molecule {
	block := &atomnet.AtomBlock{Name: id, Model: ".lut"}

	return &atomnet.Molecule{ID: id, Root: block, Blocks: []*atomnet.AtomBlock{block}}
}

// newTestClusterer builds a one-block-type Clusterer ("clb", nBLE sites)
// over the given molecules, deriving the atom/net universe from them.
func newTestClusterer(t *testing.T, nBLE int, molecules []*atomnet.Molecule) *legalizer.Clusterer {
	t.Helper()

	root := fourBleClb(t, nBLE)
	store, err := atomnet.NewStore(molecules)
	require.NoError(t, err)

	var atoms []*atomnet.AtomBlock
	for _, m := range molecules {
		atoms = append(atoms, m.Blocks...)
	}

	types := []legalizer.BlockType{{Name: "clb", Root: root, Fc: clbFc()}}

	return legalizer.NewClusterer(types, store, nil, atoms, legalizer.DefaultOptions())
}

func TestStartNewClusterPacksSingletonLUT(t *testing.T) {
	m0 := singletonLUT("m0")
	l := newTestClusterer(t, 4, []*atomnet.Molecule{m0})

	id, err := l.StartNewCluster(m0, "clb")
	require.NoError(t, err)
	require.NoError(t, l.Verify())

	rec, err := l.CleanCluster(id)
	require.NoError(t, err)
	require.Equal(t, "clb", rec.BlockType)
	require.Len(t, rec.Atoms, 1)
	require.Same(t, m0.Root, rec.Atoms[0])
}

func TestStartNewClusterRejectsUnknownBlockType(t *testing.T) {
	m0 := singletonLUT("m0")
	l := newTestClusterer(t, 1, []*atomnet.Molecule{m0})

	_, err := l.StartNewCluster(m0, "nonexistent")
	require.ErrorIs(t, err, legalizer.ErrUnknownBlockType)
}

func TestAddMolToClusterFailsWhenClusterIsFull(t *testing.T) {
	m0 := singletonLUT("m0")
	m1 := singletonLUT("m1")
	l := newTestClusterer(t, 1, []*atomnet.Molecule{m0, m1})

	id, err := l.StartNewCluster(m0, "clb")
	require.NoError(t, err)

	err = l.AddMolToCluster(m1, id)
	require.Error(t, err, "the single BLE site is already occupied by m0")
}

func TestCapacityOverflowOpensSecondCluster(t *testing.T) {
	m0 := singletonLUT("m0")
	m1 := singletonLUT("m1")
	l := newTestClusterer(t, 1, []*atomnet.Molecule{m0, m1})

	id0, err := l.StartNewCluster(m0, "clb")
	require.NoError(t, err)

	err = l.AddMolToCluster(m1, id0)
	require.Error(t, err)

	id1, err := l.StartNewCluster(m1, "clb")
	require.NoError(t, err)
	require.NotEqual(t, id0, id1)

	require.NoError(t, l.Verify())

	usage := l.TypeUsage()
	require.Equal(t, 2, usage["clb"])
}

func TestDestroyClusterReleasesAtoms(t *testing.T) {
	m0 := singletonLUT("m0")
	l := newTestClusterer(t, 1, []*atomnet.Molecule{m0})

	id, err := l.StartNewCluster(m0, "clb")
	require.NoError(t, err)

	require.NoError(t, l.DestroyCluster(id))
	require.NoError(t, l.Verify())

	_, err = l.CleanCluster(id)
	require.ErrorIs(t, err, legalizer.ErrUnknownCluster)

	// The site is free again: the same molecule packs into a fresh cluster.
	newID, err := l.StartNewCluster(m0, "clb")
	require.NoError(t, err)
	require.NotEqual(t, id, newID)
}

// memGroupClb builds a one-site-pair architecture rooted at a
// ClassMemory composite directly ("memgroup"), with two ".mem_slice"
// primitive children sharing the parent's address bus, each fed by its
// own pin of the parent's data bus —
// the minimal fixture for invariant I4 / property P4 (spec §8 scenario
// S5, memory-sibling feasibility).
func memGroupClb(t *testing.T) *arch.PbGraphNode {
	t.Helper()

	slice := &arch.PbType{
		Name:  "memslice",
		Model: ".mem_slice",
		Ports: []arch.Port{
			{Name: "addr", Dir: arch.DirIn, Width: 1, Class: arch.PinClassAddress},
			{Name: "data", Dir: arch.DirIn, Width: 1, Class: arch.PinClassData},
			{Name: "out", Dir: arch.DirOut, Width: 1},
		},
	}

	var edges []arch.InterconnectEdge
	for i := 0; i < 2; i++ {
		edges = append(edges,
			arch.InterconnectEdge{
				From: arch.PortRef{Port: "addr", Pin: -1},
				To:   arch.PortRef{Block: "memslice", Index: i, Port: "addr", Pin: -1},
			},
			arch.InterconnectEdge{
				From: arch.PortRef{Port: "data", Pin: i},
				To:   arch.PortRef{Block: "memslice", Index: i, Port: "data", Pin: -1},
			},
			arch.InterconnectEdge{
				From: arch.PortRef{Block: "memslice", Index: i, Port: "out", Pin: -1},
				To:   arch.PortRef{Port: "out", Pin: i},
			},
		)
	}

	memgroup := &arch.PbType{
		Name:        "memgroup",
		ClassMemory: true,
		Ports: []arch.Port{
			{Name: "addr", Dir: arch.DirIn, Width: 1, Class: arch.PinClassAddress},
			{Name: "data", Dir: arch.DirIn, Width: 2, Class: arch.PinClassData},
			{Name: "out", Dir: arch.DirOut, Width: 2},
		},
		Modes: []*arch.Mode{{
			Name:     "default",
			Children: []arch.ChildSpec{{Type: slice, Count: 2}},
			Edges:    edges,
		}},
	}

	root, err := arch.Flatten(memgroup)
	require.NoError(t, err)

	return root
}

func memGroupFc() []arch.TypeFcSpec {
	return []arch.TypeFcSpec{{Port: "addr", Fc: 1}, {Port: "data", Fc: 1}, {Port: "out", Fc: 1}}
}

// memSliceAtom builds a singleton ".mem_slice" molecule whose "addr" pin
// is driven by addrNet, so two such atoms placed under the same memgroup
// instance are sibling-feasible only when they share the same addrNet.
func memSliceAtom(id string, addrNet *atomnet.AtomNet) *atomnet.Molecule {
	block := &atomnet.AtomBlock{
		Name:  id,
		Model: ".mem_slice",
		Ports: []atomnet.AtomPort{
			{Name: "addr", Pins: []*atomnet.AtomPin{{Port: "addr", Kind: atomnet.PinSink, Net: addrNet}}},
			{Name: "data", Pins: []*atomnet.AtomPin{{Port: "data", Kind: atomnet.PinSink}}},
		},
	}
	block.Ports[0].Pins[0].Block = block
	block.Ports[1].Pins[0].Block = block

	return &atomnet.Molecule{ID: id, Root: block, Blocks: []*atomnet.AtomBlock{block}}
}

func TestAddMolToClusterRejectsMemorySiblingConflict(t *testing.T) {
	netA := &atomnet.AtomNet{Name: "addrA"}
	netB := &atomnet.AtomNet{Name: "addrB"}

	m0 := memSliceAtom("m0", netA)
	m1 := memSliceAtom("m1", netB)

	root := memGroupClb(t)
	store, err := atomnet.NewStore([]*atomnet.Molecule{m0, m1})
	require.NoError(t, err)

	types := []legalizer.BlockType{{Name: "memgroup", Root: root, Fc: memGroupFc()}}
	l := legalizer.NewClusterer(types, store, nil, append(m0.Blocks, m1.Blocks...), legalizer.DefaultOptions())

	id, err := l.StartNewCluster(m0, "memgroup")
	require.NoError(t, err)

	err = l.AddMolToCluster(m1, id)
	require.ErrorIs(t, err, legalizer.ErrMemorySiblingConflict, "m1's addr net disagrees with sibling m0's")
}

func TestAddMolToClusterAcceptsMemorySiblingWithSharedAddr(t *testing.T) {
	netA := &atomnet.AtomNet{Name: "addrA"}

	m0 := memSliceAtom("m0", netA)
	m1 := memSliceAtom("m1", netA)

	root := memGroupClb(t)
	store, err := atomnet.NewStore([]*atomnet.Molecule{m0, m1})
	require.NoError(t, err)

	types := []legalizer.BlockType{{Name: "memgroup", Root: root, Fc: memGroupFc()}}
	l := legalizer.NewClusterer(types, store, nil, append(m0.Blocks, m1.Blocks...), legalizer.DefaultOptions())

	id, err := l.StartNewCluster(m0, "memgroup")
	require.NoError(t, err)

	err = l.AddMolToCluster(m1, id)
	require.NoError(t, err, "sharing the same addr net between memory siblings is feasible")
}

func TestAddMolToClusterRejectsFloorplanViolation(t *testing.T) {
	m0 := singletonLUT("m0")
	m1 := singletonLUT("m1")
	l := newTestClusterer(t, 2, []*atomnet.Molecule{m0, m1})

	regionA := cluster.Region{XLow: 0, YLow: 0, XHigh: 0, YHigh: 0}
	regionB := cluster.Region{XLow: 5, YLow: 5, XHigh: 5, YHigh: 5}
	l.PartitionOf = func(a *atomnet.AtomBlock) cluster.Region {
		if a.Name == "m0" {
			return regionA
		}

		return regionB
	}

	id, err := l.StartNewCluster(m0, "clb")
	require.NoError(t, err)

	err = l.AddMolToCluster(m1, id)
	require.ErrorIs(t, err, legalizer.ErrFloorplanViolation, "m1's partition region does not overlap m0's")
}

func TestAddMolToClusterRejectsNocGroupConflict(t *testing.T) {
	m0 := singletonLUT("m0")
	m1 := singletonLUT("m1")
	l := newTestClusterer(t, 2, []*atomnet.Molecule{m0, m1})

	l.NocGroupOf = func(a *atomnet.AtomBlock) int {
		if a.Name == "m0" {
			return 1
		}

		return 2
	}

	id, err := l.StartNewCluster(m0, "clb")
	require.NoError(t, err)

	err = l.AddMolToCluster(m1, id)
	require.ErrorIs(t, err, legalizer.ErrNocGroupViolation, "m1's noc group conflicts with m0's already-committed group")
}

func TestCompressRemapsToDenseIDs(t *testing.T) {
	m0 := singletonLUT("m0")
	m1 := singletonLUT("m1")
	l := newTestClusterer(t, 1, []*atomnet.Molecule{m0, m1})

	id0, err := l.StartNewCluster(m0, "clb")
	require.NoError(t, err)
	id1, err := l.StartNewCluster(m1, "clb")
	require.NoError(t, err)

	require.NoError(t, l.DestroyCluster(id0))
	l.Compress()

	_, err = l.CleanCluster(1)
	require.NoError(t, err, "the surviving cluster must be renumbered to a dense id")

	_ = id1
}
