// Package placement implements the per-block-type placement enumerator
// (spec §4.4): given a candidate molecule, it searches an open cluster's
// hierarchical site tree for a free, type-feasible assignment of the
// molecule's atoms to primitive sites, preferring the lowest-cost
// candidate and biasing later searches toward previously-used
// neighbourhoods (a locality reward that decays with ancestor distance).
//
// Stats is scoped to one block type and is reused across every cluster
// opened with that type; GetNextPrimitiveList must be called again after
// the underlying occupancy changes, since it lazily evicts sites the
// caller reports occupied rather than tracking occupancy itself — the
// cluster's PB tree remains the single source of truth for "is this site
// taken".
package placement
