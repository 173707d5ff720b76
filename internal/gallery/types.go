// Package gallery resolves identity embeddings against the enrolled reference
// gallery. The gallery is a pre-built artifact: a fixed mapping from student
// identity to one or more reference embeddings, queryable by nearest neighbor.
package gallery

import "context"

// DefaultMinSimilarity is the similarity floor below which a match resolves
// to Unknown.
const DefaultMinSimilarity = 0.65

// Match is the result of resolving one embedding. A StudentID of 0 means the
// embedding matched nothing above the similarity floor.
type Match struct {
	StudentID  int64
	Similarity float64
}

// Known reports whether the match resolved to an enrolled identity.
func (m Match) Known() bool { return m.StudentID != 0 }

// Unknown is the match returned when nothing in the gallery is close enough.
var Unknown = Match{}

// Resolver maps an identity embedding to the best enrolled identity and a
// similarity score. Implementations are read-only after construction and safe
// for concurrent use by all streams.
type Resolver interface {
	Resolve(ctx context.Context, embedding []float32) (Match, error)
}

// Entry is one enrolled reference embedding.
type Entry struct {
	ID        int64 // index node ID, unique per reference embedding
	StudentID int64
	Embedding []float32
}
