package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// PgResolver resolves embeddings with a pgvector nearest-neighbor query
// instead of the in-memory index. Useful when the enrolled gallery lives in
// the same Postgres instance as the attendance records and is too large or
// too frequently updated to snapshot to disk.
type PgResolver struct {
	db            *sql.DB
	minSimilarity float64
}

// NewPgResolver creates a Postgres-backed gallery resolver.
func NewPgResolver(db *sql.DB, minSimilarity float64) *PgResolver {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &PgResolver{db: db, minSimilarity: minSimilarity}
}

// Resolve runs a k=1 nearest-neighbor query over the enrolled embeddings.
func (r *PgResolver) Resolve(ctx context.Context, embedding []float32) (Match, error) {
	query := `
		SELECT student_id, embedding <-> $1 AS distance
		FROM gallery_embeddings
		ORDER BY embedding <-> $1
		LIMIT 1
	`

	var studentID int64
	var distance float64
	err := r.db.QueryRowContext(ctx, query, pgvector.NewVector(embedding)).Scan(&studentID, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return Unknown, nil
	}
	if err != nil {
		return Unknown, fmt.Errorf("gallery nearest-neighbor query: %w", err)
	}

	similarity := SimilarityFromDistance(distance)
	if similarity < r.minSimilarity {
		return Unknown, nil
	}
	return Match{StudentID: studentID, Similarity: similarity}, nil
}

// Enroll inserts one reference embedding for a student.
func (r *PgResolver) Enroll(ctx context.Context, studentID int64, embedding []float32) error {
	query := `
		INSERT INTO gallery_embeddings (student_id, embedding)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, studentID, pgvector.NewVector(embedding)); err != nil {
		return fmt.Errorf("enroll gallery embedding: %w", err)
	}
	return nil
}

// Count returns the number of enrolled reference embeddings.
func (r *PgResolver) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gallery_embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count gallery embeddings: %w", err)
	}
	return n, nil
}
