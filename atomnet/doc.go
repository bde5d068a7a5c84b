// Package atomnet holds the primitive-level (atom) netlist and the
// prepacked molecule list that the clusterer packs into clusters.
//
// Atom-netlist parsing and molecule discovery (prepacking) are external
// collaborators (clusterpack's Non-goals) — this package only defines the
// data model they produce and the derived statistics the clusterer needs:
// per-molecule block count, external-input count, and base gain (§4.2),
// plus the bucketed unclustered-by-fanin index used by the "unrelated
// clustering" fallback (§4.3).
package atomnet
