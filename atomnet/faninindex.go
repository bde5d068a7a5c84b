package atomnet

// FaninIndex is the bucketed-by-external-input-count index of §4.3: bucket
// k holds every still-valid molecule with exactly k external inputs. It is
// consulted only when the clusterer's gain-connected candidate search
// comes up empty and the "allow unrelated clustering" policy is enabled.
type FaninIndex struct {
	store   *Store
	buckets [][]*Molecule
}

// NewFaninIndex groups every molecule in store by its NumExtInputs stat.
func NewFaninIndex(store *Store) *FaninIndex {
	idx := &FaninIndex{
		store:   store,
		buckets: make([][]*Molecule, store.MaxNumExtInputs()+1),
	}
	for _, m := range store.All() {
		k := store.Stats(m).NumExtInputs
		idx.buckets[k] = append(idx.buckets[k], m)
	}

	return idx
}

// Pick returns any still-valid molecule whose external-input count is the
// largest value not greater than remainingCapacity, or (nil, false) if no
// bucket in [0, remainingCapacity] holds a valid molecule. Invalid entries
// encountered during the scan are evicted in place (lazy eviction, mirror
// of the placement enumerator's valid-list walk in §4.4).
func (idx *FaninIndex) Pick(remainingCapacity int) (*Molecule, bool) {
	top := remainingCapacity
	if top >= len(idx.buckets) {
		top = len(idx.buckets) - 1
	}

	for k := top; k >= 0; k-- {
		bucket := idx.buckets[k]
		write := 0
		var found *Molecule
		for _, m := range bucket {
			if !idx.store.IsValid(m) {
				continue // lazily evicted: dropped from the compacted bucket
			}
			bucket[write] = m
			write++
			if found == nil {
				found = m
			}
		}
		idx.buckets[k] = bucket[:write]

		if found != nil {
			return found, true
		}
	}

	return nil, false
}
