// Package legalizer implements the top-level clusterer (spec §4.6): the
// driver that turns a molecule store into an ordered list of committed
// Clusters. It owns the vector of clusters, the atom→cluster and
// molecule→cluster maps, one placement.Stats per block type, and the
// seed-selection / gain bookkeeping that decides, at each step, which
// still-unclustered molecule to try packing next.
//
// Clusterer.TryPackMolecule is the critical path: floorplan and NoC-group
// checks, a loop over placement.Stats.GetNextPrimitiveList attempting to
// realize the molecule's atoms on concrete architecture sites, an optional
// pin-feasibility filter, and (depending on Options.DetailedRoutingStage)
// an intra-cluster routing call — with full rollback of the cluster's PB
// tree, placement stats, and pin usage on any rejection (spec §5's
// atomicity guarantee, spec's testable property P7).
package legalizer
