package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloodei/apt-attendance/internal/store"
)

// SessionRepository provides PostgreSQL-backed session storage.
type SessionRepository struct {
	pool *Pool
}

func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// CreateSession stores the session and its roster in one transaction.
func (r *SessionRepository) CreateSession(ctx context.Context, s *store.Session) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, class_name, started_at, ended_at)
		VALUES ($1, $2, $3, $4)
	`, s.ID, s.ClassName, s.StartedAt, s.EndedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	for studentID, name := range s.Roster {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_roster (session_id, student_id, student_name)
			VALUES ($1, $2, $3)
		`, s.ID, studentID, name)
		if err != nil {
			return fmt.Errorf("attach roster entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// GetSession retrieves a session with its roster.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*store.Session, error) {
	var s store.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, class_name, started_at, ended_at
		FROM sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &s.ClassName, &s.StartedAt, &s.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT student_id, student_name
		FROM session_roster
		WHERE session_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get session roster: %w", err)
	}
	defer rows.Close()

	s.Roster = make(map[int64]string)
	for rows.Next() {
		var studentID int64
		var name string
		if err := rows.Scan(&studentID, &name); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		s.Roster[studentID] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster entries: %w", err)
	}

	return &s, nil
}

// ListSessions returns all sessions ordered by start time, without rosters.
func (r *SessionRepository) ListSessions(ctx context.Context) ([]store.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, class_name, started_at, ended_at
		FROM sessions
		ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []store.Session
	for rows.Next() {
		var s store.Session
		if err := rows.Scan(&s.ID, &s.ClassName, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// EndSession marks the session as ended. Already-ended sessions keep their
// original end time.
func (r *SessionRepository) EndSession(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET ended_at = COALESCE(ended_at, $2)
		WHERE id = $1
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
