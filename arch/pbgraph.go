package arch

// DefaultConnectDepth bounds how many pb-graph hops the routability-pruning
// cache (ConnectableAtDepth) explores. The legacy implementation uses a
// small fixed depth; clusterpack keeps it a constant rather than a per-call
// parameter since every caller in this codebase uses the same bound.
const DefaultConnectDepth = 4

// PbGraphPin is one pin of a flattened PbGraphNode. Index is the pin's
// pin_count_in_cluster: a unique index into this block type's RR graph and
// into a cluster's pb_route map.
type PbGraphPin struct {
	Node           *PbGraphNode
	Port           Port
	PinIndexInPort int
	Index          int
	Dir            Direction
	Equiv          Equivalence

	InEdges  []*PbGraphEdge
	OutEdges []*PbGraphEdge
}

// PbGraphEdge is one pb-graph interconnect edge, tagged by the Mode that
// defines it and by the composite PbGraphNode instance that mode belongs
// to, so the RR-graph builder and router can filter edges by whether that
// specific composite instance currently has Mode active.
type PbGraphEdge struct {
	From      *PbGraphPin
	To        *PbGraphPin
	Mode      *Mode
	ModeIndex int // Mode's index within Owner.PbType.Modes
	Owner     *PbGraphNode
}

// PbGraphNode is a flattened instance of a PbType: a uniquely-identified
// architectural site. The root PbGraphNode represents one CLB instance;
// every other node is reached from it via ChildrenByMode.
type PbGraphNode struct {
	PbType         *PbType
	Parent         *PbGraphNode
	PlacementIndex int // index among siblings of the same type under the same parent+mode
	Pins           []*PbGraphPin

	// ChildrenByMode[modeIndex][childTypeName] lists that mode's instances
	// of the named child type, in declaration order. Empty for primitives.
	ChildrenByMode []map[string][]*PbGraphNode

	// ConnectableAtDepth[d] is the set of primitive input pins reachable
	// from any pin of this node within exactly d pb-graph hops (any mode),
	// used by the placement enumerator to prune infeasible forced-pack
	// walks before attempting a full try_place_molecule (spec §4.4).
	ConnectableAtDepth [][]*PbGraphPin
}

// IsPrimitive reports whether this node is a leaf site.
func (n *PbGraphNode) IsPrimitive() bool { return n.PbType.IsPrimitive() }

// Pin returns the pin at the given port/pin-in-port coordinate, or nil.
func (n *PbGraphNode) Pin(portName string, pinInPort int) *PbGraphPin {
	for _, p := range n.Pins {
		if p.Port.Name == portName && p.PinIndexInPort == pinInPort {
			return p
		}
	}

	return nil
}

type pinCounter struct{ n int }

func (c *pinCounter) next() int {
	i := c.n
	c.n++

	return i
}

// Flatten walks a PbType forest rooted at root and produces its PbGraphNode
// instance tree, assigning every pin a unique Index (pin_count_in_cluster)
// in depth-first, declaration order.
func Flatten(root *PbType) (*PbGraphNode, error) {
	if root == nil || root.Name == "" {
		return nil, ErrEmptyTypeName
	}

	counter := &pinCounter{}
	node, err := flattenRec(root, nil, 0, counter)
	if err != nil {
		return nil, err
	}

	return node, nil
}

func flattenRec(t *PbType, parent *PbGraphNode, placementIndex int, counter *pinCounter) (*PbGraphNode, error) {
	seen := make(map[string]struct{}, len(t.Ports))
	node := &PbGraphNode{PbType: t, Parent: parent, PlacementIndex: placementIndex}
	for _, port := range t.Ports {
		if _, dup := seen[port.Name]; dup {
			return nil, ErrDuplicatePort
		}
		seen[port.Name] = struct{}{}

		for i := 0; i < port.Width; i++ {
			node.Pins = append(node.Pins, &PbGraphPin{
				Node:           node,
				Port:           port,
				PinIndexInPort: i,
				Dir:            port.Dir,
				Equiv:          port.Equiv,
				Index:          counter.next(),
			})
		}
	}

	if t.IsPrimitive() {
		return node, nil
	}
	if len(t.Modes) == 0 {
		return nil, ErrNoModes
	}

	node.ChildrenByMode = make([]map[string][]*PbGraphNode, len(t.Modes))
	for mi, mode := range t.Modes {
		byType := make(map[string][]*PbGraphNode, len(mode.Children))
		for _, cs := range mode.Children {
			insts := make([]*PbGraphNode, cs.Count)
			for i := 0; i < cs.Count; i++ {
				child, err := flattenRec(cs.Type, node, i, counter)
				if err != nil {
					return nil, err
				}
				insts[i] = child
			}
			byType[cs.Type.Name] = insts
		}
		node.ChildrenByMode[mi] = byType
	}

	for mi, mode := range t.Modes {
		for _, e := range mode.Edges {
			if err := wireEdge(node, mi, mode, e); err != nil {
				return nil, err
			}
		}
	}

	computeConnectable(node, DefaultConnectDepth)

	return node, nil
}

func resolvePortRef(node *PbGraphNode, modeIdx int, ref PortRef) ([]*PbGraphPin, error) {
	target := node
	if ref.Block != "" {
		insts, ok := node.ChildrenByMode[modeIdx][ref.Block]
		if !ok || ref.Index < 0 || ref.Index >= len(insts) {
			return nil, ErrUnknownPort
		}
		target = insts[ref.Index]
	}

	port, ok := target.PbType.Port(ref.Port)
	if !ok {
		return nil, ErrUnknownPort
	}

	if ref.Pin == -1 {
		pins := make([]*PbGraphPin, 0, port.Width)
		for _, p := range target.Pins {
			if p.Port.Name == ref.Port {
				pins = append(pins, p)
			}
		}

		return pins, nil
	}

	if ref.Pin < 0 || ref.Pin >= port.Width {
		return nil, ErrPinIndexOutOfRange
	}
	if p := target.Pin(ref.Port, ref.Pin); p != nil {
		return []*PbGraphPin{p}, nil
	}

	return nil, ErrUnknownPort
}

func wireEdge(node *PbGraphNode, modeIdx int, mode *Mode, e InterconnectEdge) error {
	froms, err := resolvePortRef(node, modeIdx, e.From)
	if err != nil {
		return err
	}
	tos, err := resolvePortRef(node, modeIdx, e.To)
	if err != nil {
		return err
	}

	connect := func(f, t *PbGraphPin) {
		edge := &PbGraphEdge{From: f, To: t, Mode: mode, ModeIndex: modeIdx, Owner: node}
		f.OutEdges = append(f.OutEdges, edge)
		t.InEdges = append(t.InEdges, edge)
	}

	switch {
	case len(froms) == len(tos):
		for i := range froms {
			connect(froms[i], tos[i])
		}
	case len(froms) == 1:
		for _, t := range tos {
			connect(froms[0], t)
		}
	case len(tos) == 1:
		for _, f := range froms {
			connect(f, tos[0])
		}
	default:
		for _, f := range froms {
			for _, t := range tos {
				connect(f, t)
			}
		}
	}

	return nil
}

// computeConnectable BFS-expands, from every pin of node, the set of
// primitive input pins reachable within 0..maxDepth pb-graph hops (any
// mode's edges), and caches the per-depth frontier on the node.
func computeConnectable(node *PbGraphNode, maxDepth int) {
	node.ConnectableAtDepth = make([][]*PbGraphPin, maxDepth+1)

	type frontierEntry struct {
		pin   *PbGraphPin
		depth int
	}

	visited := make(map[*PbGraphPin]bool)
	var queue []frontierEntry
	for _, p := range node.Pins {
		queue = append(queue, frontierEntry{p, 0})
		visited[p] = true
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.pin.Node.IsPrimitive() && cur.pin.Dir != DirOut {
			node.ConnectableAtDepth[cur.depth] = append(node.ConnectableAtDepth[cur.depth], cur.pin)
		}
		if cur.depth == maxDepth {
			continue
		}
		for _, e := range cur.pin.OutEdges {
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, frontierEntry{e.To, cur.depth + 1})
			}
		}
	}
}
