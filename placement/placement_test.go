package placement_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/atomnet"
	"github.com/katalvlaran/clusterpack/placement"
)

// fourBleClb builds a clb with nBLE independent 1-LUT BLEs and no
// interconnect edges — enough to exercise type-feasibility, load-balance
// tie-breaking, and locality rewards.
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
	clb := &arch.PbType{
		Name: "clb",
		Ports: []arch.Port{
			{Name: "in", Dir: arch.DirIn, Width: 4 * nBLE},
			{Name: "out", Dir: arch.DirOut, Width: nBLE},
		},
		Modes: []*arch.Mode{{
			Name:     "default",
			Children: []arch.ChildSpec{{Type: ble, Count: nBLE}},
		}},
	}

	root, err := arch.Flatten(clb)
	require.NoError(t, err)

	return root
}

func singletonLUT(id string) *atomnet.Molecule {
	block := &atomnet.AtomBlock{Name: id, Model: ".lut"}

	return &atomnet.Molecule{ID: id, Root: block, Blocks: []*atomnet.AtomBlock{block}}
}

func TestGetNextPrimitiveListPicksFirstFreeSite(t *testing.T) {
	root := fourBleClb(t, 4)
	stats := placement.NewStats(root)

	noneOccupied := func(*arch.PbGraphNode) bool { return false }

	p, ok := stats.GetNextPrimitiveList(singletonLUT("m0"), noneOccupied)
	require.True(t, ok)
	require.Len(t, p.Sites, 1)
	require.Equal(t, ".lut", p.Sites[0].PbType.Model)
	require.Same(t, root.ChildrenByMode[0]["ble"][0], p.Sites[0])
}

func TestGetNextPrimitiveListSkipsOccupiedSites(t *testing.T) {
	root := fourBleClb(t, 2)
	stats := placement.NewStats(root)

	ble0 := root.ChildrenByMode[0]["ble"][0]
	occupied := func(n *arch.PbGraphNode) bool { return n == ble0 }

	p, ok := stats.GetNextPrimitiveList(singletonLUT("m0"), occupied)
	require.True(t, ok)
	require.NotSame(t, ble0, p.Sites[0])
}

func TestGetNextPrimitiveListExhaustsAllSites(t *testing.T) {
	root := fourBleClb(t, 2)
	stats := placement.NewStats(root)
	noneOccupied := func(*arch.PbGraphNode) bool { return false }

	p1, ok := stats.GetNextPrimitiveList(singletonLUT("m0"), noneOccupied)
	require.True(t, ok)
	stats.CommitPrimitive(p1)

	p2, ok := stats.GetNextPrimitiveList(singletonLUT("m1"), noneOccupied)
	require.True(t, ok)
	require.NotSame(t, p1.Sites[0], p2.Sites[0])
	stats.CommitPrimitive(p2)

	_, ok = stats.GetNextPrimitiveList(singletonLUT("m2"), noneOccupied)
	require.False(t, ok, "both BLEs are now committed")
}

func TestGetNextPrimitiveListRejectsWrongModel(t *testing.T) {
	root := fourBleClb(t, 1)
	stats := placement.NewStats(root)
	noneOccupied := func(*arch.PbGraphNode) bool { return false }

	block := &atomnet.AtomBlock{Name: "ff0", Model: ".latch"}
	mol := &atomnet.Molecule{ID: "ff0", Root: block, Blocks: []*atomnet.AtomBlock{block}}

	_, ok := stats.GetNextPrimitiveList(mol, noneOccupied)
	require.False(t, ok)
}

func TestGetNextPrimitiveListRestartsOnMoleculeChange(t *testing.T) {
	root := fourBleClb(t, 1)
	stats := placement.NewStats(root)
	noneOccupied := func(*arch.PbGraphNode) bool { return false }

	m0 := singletonLUT("m0")
	_, ok := stats.GetNextPrimitiveList(m0, noneOccupied)
	require.True(t, ok, "first attempt marks the only site in_flight")

	_, ok = stats.GetNextPrimitiveList(m0, noneOccupied)
	require.False(t, ok, "same molecule must not re-offer an in_flight site")

	m1 := singletonLUT("m1")
	_, ok = stats.GetNextPrimitiveList(m1, noneOccupied)
	require.True(t, ok, "a new molecule flushes in_flight back to valid")
}
