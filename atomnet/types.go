package atomnet

import "errors"

// Sentinel errors for atom-netlist construction and molecule stat derivation.
var (
	// ErrEmptyBlockName indicates an AtomBlock was constructed without a name.
	ErrEmptyBlockName = errors.New("atomnet: atom block name is empty")

	// ErrEmptyMolecule indicates a Molecule was constructed with no blocks.
	ErrEmptyMolecule = errors.New("atomnet: molecule has no blocks")

	// ErrRootNotInMolecule indicates a Molecule's declared Root is not one
	// of its own Blocks.
	ErrRootNotInMolecule = errors.New("atomnet: molecule root is not a member of its own block set")
)

// PinKind distinguishes a driving pin from a sink pin.
type PinKind uint8

const (
	PinDriver PinKind = iota
	PinSink
)

// AtomPort is a named, fixed-width bus on an AtomBlock.
type AtomPort struct {
	Name  string
	Pins  []*AtomPin
}

// AtomPin is one pin of an AtomBlock. Net is nil for an unconnected pin.
type AtomPin struct {
	Block *AtomBlock
	Port  string
	Index int
	Kind  PinKind
	Net   *AtomNet
}

// IsClock reports whether this pin sits on a port named "clk" or "clock";
// clocks are counted alongside data inputs for num_ext_inputs (spec §4.2).
// The pin-feasibility filter (spec §4.6) buckets pins by their
// architecture port's PinClass, not by this check.
func (p *AtomPin) IsClock() bool {
	return p.Port == "clk" || p.Port == "clock"
}

// AtomBlock is one primitive netlist element (a LUT, flip-flop, memory
// slice, adder, I/O buffer, ...): { name, model, ports[] } per spec §3.
type AtomBlock struct {
	Name  string
	Model string
	Ports []AtomPort
}

// Pins returns every pin of this block, across all ports, in port
// declaration order.
func (b *AtomBlock) Pins() []*AtomPin {
	var pins []*AtomPin
	for _, p := range b.Ports {
		pins = append(pins, p.Pins...)
	}

	return pins
}

// InputPins returns every sink pin (data or clock) of this block.
func (b *AtomBlock) InputPins() []*AtomPin {
	var pins []*AtomPin
	for _, p := range b.Pins() {
		if p.Kind == PinSink {
			pins = append(pins, p)
		}
	}

	return pins
}

// AtomNet is a driver pin plus an ordered list of sink pins. Fanout is the
// number of sinks.
type AtomNet struct {
	Name   string
	Driver *AtomPin
	Sinks  []*AtomPin
}

// Fanout returns len(Sinks).
func (n *AtomNet) Fanout() int { return len(n.Sinks) }

// DriverBlock returns the AtomBlock driving this net, or nil if the net
// has no driver pin (e.g. a constant net modeled without one).
func (n *AtomNet) DriverBlock() *AtomBlock {
	if n.Driver == nil {
		return nil
	}

	return n.Driver.Block
}
