package atomnet

// Stats is the derived, once-computed statistics for one Molecule
// (spec §4.2): num_blocks, num_ext_inputs, base_gain.
type Stats struct {
	NumBlocks    int
	NumExtInputs int
	BaseGain     float64
}

// Store is the ordered collection of pack molecules (spec §3 "Molecule
// store") plus their derived statistics and the atom→molecules multimap.
// It is read-only with respect to molecule content after NewStore; the
// only mutable state it owns is each molecule's validity bit, which the
// legalizer flips through CommitMolecule and RevalidateAtoms to preserve
// invariant I6.
type Store struct {
	molecules       []*Molecule
	atomToMolecules map[*AtomBlock][]*Molecule
	stats           map[*Molecule]Stats
	valid           map[*Molecule]bool

	maxNumBlocks    int
	maxNumExtInputs int
}

// NewStore computes derived stats for every molecule and indexes the
// atom→molecules multimap. Every molecule starts valid.
func NewStore(molecules []*Molecule) (*Store, error) {
	s := &Store{
		molecules:       molecules,
		atomToMolecules: make(map[*AtomBlock][]*Molecule),
		stats:           make(map[*Molecule]Stats, len(molecules)),
		valid:           make(map[*Molecule]bool, len(molecules)),
	}

	for _, m := range molecules {
		if err := validateMolecule(m); err != nil {
			return nil, err
		}

		for _, b := range m.Blocks {
			s.atomToMolecules[b] = append(s.atomToMolecules[b], m)
		}

		st := computeStats(m)
		s.stats[m] = st
		s.valid[m] = true

		if st.NumBlocks > s.maxNumBlocks {
			s.maxNumBlocks = st.NumBlocks
		}
		if st.NumExtInputs > s.maxNumExtInputs {
			s.maxNumExtInputs = st.NumExtInputs
		}
	}

	return s, nil
}

// computeStats derives num_blocks, num_ext_inputs, and base_gain for one
// molecule. num_ext_inputs counts input/clock pins whose driving net's
// driver atom lies outside the molecule (or is undriven); base_gain
// rewards larger molecules and lightly penalizes many external inputs, so
// that among several molecules sharing a seed atom the one needing fewer
// outside connections (for equal size) wins ties (spec §4.6, Open
// Questions — no exact formula prescribed).
func computeStats(m *Molecule) Stats {
	inSet := make(map[*AtomBlock]bool, len(m.Blocks))
	for _, b := range m.Blocks {
		inSet[b] = true
	}

	extInputs := 0
	for _, b := range m.Blocks {
		for _, p := range b.InputPins() {
			if p.Net == nil {
				continue
			}
			driver := p.Net.DriverBlock()
			if driver == nil || !inSet[driver] {
				extInputs++
			}
		}
	}

	numBlocks := len(m.Blocks)

	return Stats{
		NumBlocks:    numBlocks,
		NumExtInputs: extInputs,
		BaseGain:     float64(numBlocks) - 0.01*float64(extInputs),
	}
}

// All returns every molecule in store order.
func (s *Store) All() []*Molecule { return s.molecules }

// Stats returns the cached derived statistics for m.
func (s *Store) Stats(m *Molecule) Stats { return s.stats[m] }

// IsValid reports m's current validity bit.
func (s *Store) IsValid(m *Molecule) bool { return s.valid[m] }

// MaxNumBlocks returns the maximum num_blocks across all molecules.
func (s *Store) MaxNumBlocks() int { return s.maxNumBlocks }

// MaxNumExtInputs returns the maximum num_ext_inputs across all molecules.
func (s *Store) MaxNumExtInputs() int { return s.maxNumExtInputs }

// MoleculesContaining returns every molecule that has atom as one of its
// blocks.
func (s *Store) MoleculesContaining(atom *AtomBlock) []*Molecule {
	return s.atomToMolecules[atom]
}

// CommitMolecule marks m invalid, along with every other molecule that
// shares at least one atom with m (spec §4.6 try_pack_molecule, "on
// success"). Molecules sharing atoms stay unpackable as a whole once any
// of their atoms is claimed by a different committed molecule, until
// RevalidateAtoms marks them valid again.
func (s *Store) CommitMolecule(m *Molecule) {
	s.valid[m] = false

	seen := make(map[*Molecule]bool)
	for _, b := range m.Blocks {
		for _, other := range s.atomToMolecules[b] {
			if other == m || seen[other] {
				continue
			}
			seen[other] = true
			s.valid[other] = false
		}
	}
}

// RevalidateAtoms implements invariant I6's revert half: for every
// molecule that touches any atom in atoms, recompute validity as "every
// block of the molecule is currently unclustered" per isUnclustered.
func (s *Store) RevalidateAtoms(atoms []*AtomBlock, isUnclustered func(*AtomBlock) bool) {
	seen := make(map[*Molecule]bool)
	for _, a := range atoms {
		for _, m := range s.atomToMolecules[a] {
			if seen[m] {
				continue
			}
			seen[m] = true

			allFree := true
			for _, b := range m.Blocks {
				if !isUnclustered(b) {
					allFree = false
					break
				}
			}
			s.valid[m] = allFree
		}
	}
}
