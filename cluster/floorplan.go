package cluster

// Region is an axis-aligned floorplan partition region. The zero value
// (Unconstrained == false, all bounds zero) is never used directly —
// callers start from UnconstrainedRegion().
type Region struct {
	Unconstrained bool
	XLow, YLow    int
	XHigh, YHigh  int
}

// UnconstrainedRegion returns the region that intersects with anything:
// a freshly opened cluster's initial floorplan state (spec §4.6 step b).
func UnconstrainedRegion() Region { return Region{Unconstrained: true} }

// Intersect returns the intersection of a and b, and whether it is
// non-empty. An unconstrained region intersected with anything yields the
// other region unchanged.
func Intersect(a, b Region) (Region, bool) {
	if a.Unconstrained {
		return b, true
	}
	if b.Unconstrained {
		return a, true
	}

	r := Region{
		XLow:  max(a.XLow, b.XLow),
		YLow:  max(a.YLow, b.YLow),
		XHigh: min(a.XHigh, b.XHigh),
		YHigh: min(a.YHigh, b.YHigh),
	}
	if r.XLow > r.XHigh || r.YLow > r.YHigh {
		return Region{}, false
	}

	return r, true
}

// InvalidNocGroup marks "no NoC group constraint" (spec §4.6 step c,
// "neither is invalid").
const InvalidNocGroup = -1

// UnifyNocGroup implements the NoC-group propagation rule named but not
// pinned down by spec §4.6: an invalid group unifies with any concrete
// group (the result is the concrete one); two differing concrete groups
// conflict; equal groups (including two invalids) are already unified.
func UnifyNocGroup(clusterGroup, atomGroup int) (result int, ok bool) {
	switch {
	case clusterGroup == InvalidNocGroup:
		return atomGroup, true
	case atomGroup == InvalidNocGroup:
		return clusterGroup, true
	case clusterGroup == atomGroup:
		return clusterGroup, true
	default:
		return 0, false
	}
}
