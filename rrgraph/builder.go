package rrgraph

import "github.com/katalvlaran/clusterpack/arch"

// sinkKey identifies a primitive-input equivalence class: pins of a
// full-equivalence port on the same PbGraphNode share one Sink; every
// other input pin gets a Sink of its own (key includes the pin).
type sinkKey struct {
	node *arch.PbGraphNode
	port string
	pin  int // -1 for the shared, full-equivalence Sink
}

// Build constructs the RR graph for one block type rooted at root,
// following the construction rules of spec §4.1.
func Build(root *arch.PbGraphNode, fc []arch.TypeFcSpec) (*Graph, error) {
	if root == nil {
		return nil, ErrNilRoot
	}

	allPins := collectPins(root)
	numPins := 0
	for _, p := range allPins {
		if p.Index+1 > numPins {
			numPins = p.Index + 1
		}
	}

	g := &Graph{Type: root.PbType, Root: root, Nodes: make([]Node, numPins)}
	for _, p := range allPins {
		g.Nodes[p.Index] = Node{Pin: p}
	}

	sinkIndex := make(map[sinkKey]int)
	allocSink := func(pin *arch.PbGraphPin) int {
		key := sinkKey{node: pin.Node, port: pin.Port.Name, pin: pin.PinIndexInPort}
		width := 1
		if pin.Equiv == arch.EquivFull {
			key.pin = -1
			width = pin.Port.Width
		}
		if idx, ok := sinkIndex[key]; ok {
			return idx
		}

		idx := len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{Kind: Sink, Capacity: width})
		sinkIndex[key] = idx

		return idx
	}

	for _, p := range allPins {
		n := &g.Nodes[p.Index]
		n.Capacity = 1 // unit-capacity routing resource; Sinks override below
		switch {
		case p.Node.IsPrimitive() && p.Dir != arch.DirOut:
			n.Kind = Intermediate
			n.IntrinsicCost = InternalCost
			n.OutEdges = []OutEdge{{Target: allocSink(p), Cost: InternalCost}}
		case p.Node.IsPrimitive() && p.Dir == arch.DirOut:
			n.Kind = Source
			n.IntrinsicCost = InternalCost
			for _, e := range p.OutEdges {
				n.OutEdges = append(n.OutEdges, OutEdge{Target: e.To.Index, Cost: InternalCost, Mode: e.Mode, ModeIndex: e.ModeIndex, Owner: e.Owner})
			}
		default: // composite-block pin, either direction
			n.Kind = Intermediate
			n.IntrinsicCost = InternalCost
			for _, e := range p.OutEdges {
				n.OutEdges = append(n.OutEdges, OutEdge{Target: e.To.Index, Cost: InternalCost, Mode: e.Mode, ModeIndex: e.ModeIndex, Owner: e.Owner})
			}
		}
	}

	g.ExtSrc = len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{Kind: Source})
	g.ExtSink = len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{Kind: Sink})
	g.ExtRR = len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{Kind: Intermediate})

	g.Nodes[g.ExtSrc].OutEdges = append(g.Nodes[g.ExtSrc].OutEdges, OutEdge{Target: g.ExtRR, Cost: ExternalCost})
	g.Nodes[g.ExtRR].OutEdges = append(g.Nodes[g.ExtRR].OutEdges, OutEdge{Target: g.ExtSink, Cost: ExternalCost})

	for _, p := range root.Pins {
		fcVal := arch.FcOf(fc, p.Port.Name)
		if fcVal <= 0 {
			continue
		}

		switch p.Dir {
		case arch.DirIn, arch.DirClock:
			g.Nodes[g.ExtRR].OutEdges = append(g.Nodes[g.ExtRR].OutEdges, OutEdge{Target: p.Index, Cost: ExternalCost})
			g.Nodes[g.ExtSrc].Capacity++
			g.Nodes[g.ExtRR].Capacity++
		case arch.DirOut:
			g.Nodes[p.Index].OutEdges = append(g.Nodes[p.Index].OutEdges, OutEdge{Target: g.ExtRR, Cost: ExternalCost})
			g.Nodes[g.ExtSink].Capacity++
			g.Nodes[g.ExtRR].Capacity++
		}
	}

	computeReachability(g)

	return g, nil
}

func collectPins(node *arch.PbGraphNode) []*arch.PbGraphPin {
	pins := append([]*arch.PbGraphPin(nil), node.Pins...)
	for _, byType := range node.ChildrenByMode {
		for _, insts := range byType {
			for _, c := range insts {
				pins = append(pins, collectPins(c)...)
			}
		}
	}

	return pins
}
