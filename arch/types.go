package arch

import "errors"

// Sentinel errors for architecture construction.
var (
	// ErrEmptyTypeName indicates a PbType was constructed with an empty name.
	ErrEmptyTypeName = errors.New("arch: pb_type name is empty")

	// ErrDuplicatePort indicates two ports on the same PbType share a name.
	ErrDuplicatePort = errors.New("arch: duplicate port name on pb_type")

	// ErrUnknownPort indicates an interconnect edge references a port that
	// does not exist on the given block.
	ErrUnknownPort = errors.New("arch: unknown port referenced by interconnect edge")

	// ErrPinIndexOutOfRange indicates a pin index beyond a port's width.
	ErrPinIndexOutOfRange = errors.New("arch: pin index out of range for port width")

	// ErrNoModes indicates Flatten was called on a composite PbType with
	// zero modes declared.
	ErrNoModes = errors.New("arch: composite pb_type has no modes")
)

// Direction is the signal direction of a Port.
type Direction uint8

const (
	// DirIn marks a data/control input port.
	DirIn Direction = iota
	// DirOut marks an output port.
	DirOut
	// DirClock marks a clock input port. The RR-graph builder and the
	// pin-feasibility filter (spec §4.6) treat it exactly like DirIn; the
	// distinct value only records the port's role.
	DirClock
)

// Equivalence classifies how interchangeable the pins of a Port are.
type Equivalence uint8

const (
	// EquivNone — pins are not interchangeable; each keeps its own identity.
	EquivNone Equivalence = iota
	// EquivFull — any pin of the port may be swapped for any other; all
	// pins of the port share a single RR Sink node sized to the port width.
	EquivFull
	// EquivInstance — pins are interchangeable only across identical sibling
	// instances of the owning PbType (e.g. memory-slice data ports).
	EquivInstance
)

// PinClass is a coarse grouping used by the pin-feasibility filter
// (spec §3 "PbStats ... num_pins_of_net_in_pb") and by per-block-type
// target external pin-utilization (spec §6).
type PinClass uint8

const (
	PinClassData PinClass = iota
	PinClassAddress
	PinClassOther
)

// Port is a named, directioned, fixed-width bus on a PbType.
type Port struct {
	Name        string
	Dir         Direction
	Width       int
	Equiv       Equivalence
	Class       PinClass
	RoleTag     string // optional "data"/"address" role annotation (spec §3)
}

// PbType is a node in the block-type hierarchy. A primitive PbType has
// zero Modes and a non-empty Model; a composite PbType has one or more
// Modes and an empty Model.
type PbType struct {
	Name  string
	Model string // behavioral model name; set only on primitives
	Ports []Port
	Modes []*Mode

	// ClassMemory marks this PbType as a "memory" class composite: every
	// primitive child placed under the same parent instance must expose
	// identical nets on every non-data port (spec invariant I4).
	ClassMemory bool
}

// IsPrimitive reports whether this PbType is a leaf (zero modes).
func (t *PbType) IsPrimitive() bool { return len(t.Modes) == 0 }

// Port looks up a port by name, returning (port, true) or (zero, false).
func (t *PbType) Port(name string) (Port, bool) {
	for _, p := range t.Ports {
		if p.Name == name {
			return p, true
		}
	}

	return Port{}, false
}

// Mode is one operating mode of a composite PbType: a set of typed child
// sub-blocks (each with an instance count) plus the interconnect edges
// that wire parent ports to child ports (and child ports to each other)
// while this mode is active.
type Mode struct {
	Name     string
	Children []ChildSpec
	Edges    []InterconnectEdge
}

// ChildSpec declares a homogeneous array of child sub-blocks of one type
// under a Mode, e.g. "four BLE instances".
type ChildSpec struct {
	Type     *PbType
	Count    int
}

// PortRef addresses one pin (or an entire port, Pin == -1) of either the
// parent block (Block == "") or one indexed child instance.
type PortRef struct {
	Block string // child PbType name, or "" for the parent
	Index int    // child instance index; ignored when Block == ""
	Port  string
	Pin   int // -1 means "whole port"
}

// InterconnectEdge connects a driving pin (or port) to a sink pin (or
// port) within one Mode. Width-matched "whole port to whole port" edges
// (Pin == -1 on both ends) expand to one edge per pin during Flatten. A
// one-pin end fans out to (or gathers from) every pin of the other end;
// any other width mismatch connects every From pin to every To pin.
type InterconnectEdge struct {
	From PortRef
	To   PortRef
}
