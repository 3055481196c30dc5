// Package feature provides the concurrent bimaps that assign dense integer
// indices to atomic string features and to product (conjunction) features.
// It is the feature universe described by the engine: every other component
// addresses features only by their J, never by name.
package feature

import "fmt"

// J is the dense index assigned to an atomic or product feature.
type J uint32

// InvalidJ is the tombstone value used during renumbering to mark a J as
// removed.
const InvalidJ J = 1<<32 - 1

// MaxJ is the largest J value the monotone counter may assign before the
// engine must report a resource-overflow error.
const MaxJ = InvalidJ - 1

// Renumbering is an injection from old J to new J. InvalidJ means "this J
// was removed". Renumber implementations on every component must apply the
// same Renumbering to preserve cross-component consistency.
type Renumbering struct {
	// Map holds old J -> new J. Entries absent from Map are assumed
	// identity only if NextJ covers them; callers should always look up
	// through Apply rather than indexing Map directly.
	Map []J
	// NextJ is the size of the J space after the renumbering is applied.
	NextJ J
}

// Apply returns the new J for old, or (InvalidJ, false) if old is out of
// range of the renumbering (treated as removed).
func (r Renumbering) Apply(old J) (J, bool) {
	if int(old) >= len(r.Map) {
		return InvalidJ, false
	}
	nj := r.Map[old]
	return nj, nj != InvalidJ
}

// NewRenumbering builds a Renumbering over J's [0, size) given a removed
// set: removed[j] true means J j is dropped. Survivors are compacted in
// ascending order, preserving their relative order (SPEC_FULL.md §4.10).
func NewRenumbering(removed []bool, size int) Renumbering {
	m := make([]J, size)
	var next J
	for j := 0; j < size; j++ {
		if j < len(removed) && removed[j] {
			m[j] = InvalidJ
			continue
		}
		m[j] = next
		next++
	}
	return Renumbering{Map: m, NextJ: next}
}

// OverflowError is a resource-overflow error (see SPEC_FULL.md §7): the
// monotone J counter would exceed MaxJ.
type OverflowError struct {
	Requested J
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("feature: J counter overflow, requested J %d exceeds MaxJ %d", e.Requested, MaxJ)
}
