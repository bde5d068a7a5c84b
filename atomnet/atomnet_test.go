package atomnet_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/clusterpack/atomnet"
)

// chainOfThree builds L1→L2→L3 through two internal nets, each LUT with
// one external input and L3 with one external output, matching scenario
// S2 in spec §8.
func chainOfThree(t *testing.T) (*atomnet.AtomBlock, *atomnet.AtomBlock, *atomnet.AtomBlock) {
	t.Helper()

	l1 := &atomnet.AtomBlock{Name: "L1", Model: ".lut"}
	l2 := &atomnet.AtomBlock{Name: "L2", Model: ".lut"}
	l3 := &atomnet.AtomBlock{Name: "L3", Model: ".lut"}

	mk := func(b *atomnet.AtomBlock) *atomnet.AtomPin {
		return &atomnet.AtomPin{Block: b, Port: "in", Index: 0, Kind: atomnet.PinSink}
	}
	outPin := func(b *atomnet.AtomBlock) *atomnet.AtomPin {
		return &atomnet.AtomPin{Block: b, Port: "out", Index: 0, Kind: atomnet.PinDriver}
	}

	extIn1 := mk(l1)
	l1Out := outPin(l1)
	l1.Ports = []atomnet.AtomPort{{Name: "in", Pins: []*atomnet.AtomPin{extIn1}}, {Name: "out", Pins: []*atomnet.AtomPin{l1Out}}}

	l2In := mk(l2)
	l2ExtIn := mk(l2)
	l2Out := outPin(l2)
	l2.Ports = []atomnet.AtomPort{{Name: "in", Pins: []*atomnet.AtomPin{l2In, l2ExtIn}}, {Name: "out", Pins: []*atomnet.AtomPin{l2Out}}}

	l3In := mk(l3)
	l3ExtIn := mk(l3)
	l3Out := outPin(l3)
	l3.Ports = []atomnet.AtomPort{{Name: "in", Pins: []*atomnet.AtomPin{l3In, l3ExtIn}}, {Name: "out", Pins: []*atomnet.AtomPin{l3Out}}}

	net12 := &atomnet.AtomNet{Name: "n12", Driver: l1Out, Sinks: []*atomnet.AtomPin{l2In}}
	l1Out.Net, l2In.Net = net12, net12

	net23 := &atomnet.AtomNet{Name: "n23", Driver: l2Out, Sinks: []*atomnet.AtomPin{l3In}}
	l2Out.Net, l3In.Net = net23, net23

	extNet1 := &atomnet.AtomNet{Sinks: []*atomnet.AtomPin{extIn1}}
	extIn1.Net = extNet1
	extNet2 := &atomnet.AtomNet{Sinks: []*atomnet.AtomPin{l2ExtIn}}
	l2ExtIn.Net = extNet2
	extNet3 := &atomnet.AtomNet{Sinks: []*atomnet.AtomPin{l3ExtIn}}
	l3ExtIn.Net = extNet3
	extOutNet := &atomnet.AtomNet{Driver: l3Out}
	l3Out.Net = extOutNet

	return l1, l2, l3
}

func TestMoleculeStatsSingletonsCountChainNetsAsExternal(t *testing.T) {
	l1, l2, l3 := chainOfThree(t)

	single := func(b *atomnet.AtomBlock, id string) *atomnet.Molecule {
		return &atomnet.Molecule{ID: id, Root: b, Blocks: []*atomnet.AtomBlock{b}}
	}
	m1, m2, m3 := single(l1, "m1"), single(l2, "m2"), single(l3, "m3")

	store, err := atomnet.NewStore([]*atomnet.Molecule{m1, m2, m3})
	require.NoError(t, err)

	require.Equal(t, 1, store.Stats(m1).NumExtInputs)
	require.Equal(t, 2, store.Stats(m2).NumExtInputs)
	require.Equal(t, 2, store.Stats(m3).NumExtInputs)
}

func TestMoleculeStatsWholeChainAbsorbsInternalNets(t *testing.T) {
	l1, l2, l3 := chainOfThree(t)
	chain := &atomnet.Molecule{ID: "chain", Root: l1, Blocks: []*atomnet.AtomBlock{l1, l2, l3}}

	store, err := atomnet.NewStore([]*atomnet.Molecule{chain})
	require.NoError(t, err)

	// 3 external inputs (one per LUT), the two chain nets are internal.
	require.Equal(t, 3, store.Stats(chain).NumExtInputs)
	require.Equal(t, 3, store.Stats(chain).NumBlocks)
}

func TestCommitMoleculeInvalidatesSharingSiblings(t *testing.T) {
	l1, _, _ := chainOfThree(t)
	a := &atomnet.Molecule{ID: "a", Root: l1, Blocks: []*atomnet.AtomBlock{l1}}
	b := &atomnet.Molecule{ID: "b", Root: l1, Blocks: []*atomnet.AtomBlock{l1}}

	store, err := atomnet.NewStore([]*atomnet.Molecule{a, b})
	require.NoError(t, err)

	store.CommitMolecule(a)
	require.False(t, store.IsValid(a))
	require.False(t, store.IsValid(b))

	store.RevalidateAtoms([]*atomnet.AtomBlock{l1}, func(*atomnet.AtomBlock) bool { return true })
	require.True(t, store.IsValid(a))
	require.True(t, store.IsValid(b))
}

func TestFaninIndexPicksLargestFeasibleBucket(t *testing.T) {
	l1, l2, l3 := chainOfThree(t)
	m1 := &atomnet.Molecule{ID: "m1", Root: l1, Blocks: []*atomnet.AtomBlock{l1}}               // 1 ext input
	m2 := &atomnet.Molecule{ID: "m2", Root: l2, Blocks: []*atomnet.AtomBlock{l2}}               // 2 ext inputs, driver of net12 is outside {l2}
	chain := &atomnet.Molecule{ID: "chain", Root: l1, Blocks: []*atomnet.AtomBlock{l1, l2, l3}} // 3 ext inputs

	store, err := atomnet.NewStore([]*atomnet.Molecule{m1, m2, chain})
	require.NoError(t, err)
	idx := atomnet.NewFaninIndex(store)

	got, ok := idx.Pick(2)
	require.True(t, ok)
	require.LessOrEqual(t, store.Stats(got).NumExtInputs, 2)

	_, ok = idx.Pick(0)
	require.False(t, ok, "no molecule has zero external inputs")
}
