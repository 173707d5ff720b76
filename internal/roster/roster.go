// Package roster holds the set of identities eligible for attendance tracking
// in one session. The roster is supplied once at stream construction and is
// read-only for the stream's lifetime.
package roster

import "sort"

// Roster maps student IDs to display names.
type Roster struct {
	names map[int64]string
}

// New builds a roster from an ID to display-name mapping. The input map is
// copied; later mutation of the argument does not affect the roster.
func New(names map[int64]string) *Roster {
	copied := make(map[int64]string, len(names))
	for id, name := range names {
		copied[id] = name
	}
	return &Roster{names: copied}
}

// Name returns the display name for a student ID.
func (r *Roster) Name(id int64) (string, bool) {
	name, ok := r.names[id]
	return name, ok
}

// Contains reports whether the student is on the roster.
func (r *Roster) Contains(id int64) bool {
	_, ok := r.names[id]
	return ok
}

// Len returns the roster size.
func (r *Roster) Len() int { return len(r.names) }

// IDs returns the student IDs in ascending order.
func (r *Roster) IDs() []int64 {
	ids := make([]int64, 0, len(r.names))
	for id := range r.names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Names returns a copy of the underlying mapping.
func (r *Roster) Names() map[int64]string {
	out := make(map[int64]string, len(r.names))
	for id, name := range r.names {
		out[id] = name
	}
	return out
}
