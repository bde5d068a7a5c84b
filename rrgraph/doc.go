// Package rrgraph builds, from a flattened block type, the intra-cluster
// routing-resource graph (spec §4.1): a flat, directed graph of LbRrNode
// (here: Node) values — one per PbGraphPin in the flattened architecture,
// plus three synthetic nodes (ext_src, ext_sink, ext_rr) modeling the
// cluster boundary — together with the reachability tables the router's
// boundary-endpoint picker needs.
//
// Once built, the graph is read-only (spec §5); only the router's
// per-cluster occupancy/historical-usage state is ever mutated.
// cluster.NewCluster calls Build for every cluster, so each cluster holds
// its own graph; graphs are not shared between clusters of one type.
package rrgraph
