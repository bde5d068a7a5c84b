// Package cluster holds the mutable state of one cluster-under-
// construction (spec §3): the root PB instance, a lazily-grown tree of
// child PB nodes, per-composite pin-usage accounting, the cluster-wide
// gain bookkeeping used by the legalizer's seed-and-grow loop, a
// floorplan-region intersection, a NoC-group tag, and the set of
// molecules already committed.
//
// The PB tree never forms a Pb→Pb ownership cycle (spec §9): a child's
// Parent pointer is the only up-reference, and Cluster.pbs keys every
// live Pb by the *arch.PbGraphNode site it occupies rather than by a
// separately allocated arena index — a block type's site tree is
// flattened exactly once, and a cluster is exactly one instantiation of
// it, so the architecture pointer already uniquely names the site. A
// whole cluster is discarded by dropping the map and its root Pb.
package cluster
