// Package arch models the hierarchical description of a target FPGA's
// complex logic block (CLB) architecture: a forest of PbType trees, each
// leaf a primitive with a behavioral model name, each internal node a set
// of modes, and each mode a set of child sub-blocks plus an interconnect
// graph of ports and pins.
//
// arch is a read-only collaborator: nothing in this package mutates a
// PbType tree after construction. Architecture-XML parsing is out of
// scope (see clusterpack's Non-goals) — callers build a PbType forest
// as PbType/Mode/InterconnectEdge struct literals and then Flatten it into a PbGraphNode
// tree, which is the representation the RR-graph builder, the placement
// enumerator, and the legalizer actually consume.
//
// Flattening assigns every pin in the tree a unique pin_count_in_cluster
// index, the same index space the RR-graph and pb_route map key off of.
package arch
