package rrgraph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/clusterpack/arch"
	"github.com/katalvlaran/clusterpack/rrgraph"
)

func fourLUTCLB(t *testing.T, nBLE int) *arch.PbGraphNode {
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
			Edges: []arch.InterconnectEdge{
				{From: arch.PortRef{Port: "in", Pin: -1}, To: arch.PortRef{Block: "ble", Index: 0, Port: "in", Pin: -1}},
				{From: arch.PortRef{Block: "ble", Index: 0, Port: "out", Pin: -1}, To: arch.PortRef{Port: "out", Pin: 0}},
			},
		}},
	}

	root, err := arch.Flatten(clb)
	require.NoError(t, err)

	return root
}

func TestBuildClassifiesNodeKinds(t *testing.T) {
	root := fourLUTCLB(t, 4)
	fc := []arch.TypeFcSpec{{Port: "in", Fc: 1}, {Port: "out", Fc: 1}}

	g, err := rrgraph.Build(root, fc)
	require.NoError(t, err)

	ble0 := root.ChildrenByMode[0]["ble"][0]
	inPin := ble0.Pin("in", 0)
	outPin := ble0.Pin("out", 0)

	require.Equal(t, rrgraph.Intermediate, g.Nodes[inPin.Index].Kind)
	require.Len(t, g.Nodes[inPin.Index].OutEdges, 1)

	sinkIdx := g.Nodes[inPin.Index].OutEdges[0].Target
	require.Equal(t, rrgraph.Sink, g.Nodes[sinkIdx].Kind)
	require.Equal(t, 4, g.Nodes[sinkIdx].Capacity, "full-equivalence port shares one sink sized to port width")

	// All four input pins of ble0 should share the same sink.
	for i := 1; i < 4; i++ {
		p := ble0.Pin("in", i)
		require.Equal(t, sinkIdx, g.Nodes[p.Index].OutEdges[0].Target)
	}

	require.Equal(t, rrgraph.Source, g.Nodes[outPin.Index].Kind)
}

func TestBuildExternalBoundaryNodes(t *testing.T) {
	root := fourLUTCLB(t, 4)
	fc := []arch.TypeFcSpec{{Port: "in", Fc: 1}, {Port: "out", Fc: 1}}

	g, err := rrgraph.Build(root, fc)
	require.NoError(t, err)

	require.Greater(t, g.Nodes[g.ExtSrc].Capacity, 0)
	require.Greater(t, g.Nodes[g.ExtSink].Capacity, 0)
	require.Equal(t, g.Nodes[g.ExtSrc].Capacity+g.Nodes[g.ExtSink].Capacity, g.Nodes[g.ExtRR].Capacity)

	inPin := root.Pin("in", 0)
	require.True(t, g.ReachableFromExtSrc(inPin.Index))

	outPin := root.Pin("out", 0)
	require.True(t, g.CanReachExtSink(outPin.Index))
}

func TestZeroFcPortHasNoExternalEdge(t *testing.T) {
	root := fourLUTCLB(t, 1)
	// No Fc spec at all: every port defaults to Fc == 0, so no pin should
	// be reachable from/to the boundary synthetic nodes.
	g, err := rrgraph.Build(root, nil)
	require.NoError(t, err)

	require.Equal(t, 0, g.Nodes[g.ExtSrc].Capacity)
	require.Equal(t, 0, g.Nodes[g.ExtSink].Capacity)
	require.False(t, g.ReachableFromExtSrc(root.Pin("in", 0).Index))
}
