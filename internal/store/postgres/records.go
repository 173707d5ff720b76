package postgres

import (
	"context"
	"fmt"

	"github.com/cloodei/apt-attendance/internal/store"
)

// RecordRepository provides PostgreSQL-backed attendance record storage.
type RecordRepository struct {
	pool *Pool
}

func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// SaveRecords upserts the session's records so a repeated flush overwrites
// instead of duplicating.
func (r *RecordRepository) SaveRecords(ctx context.Context, sessionID string, records []store.AttendanceRecord) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attendance_records
				(session_id, student_id, student_name, in_time, out_time, avg_confidence)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id, student_id) DO UPDATE SET
				student_name = EXCLUDED.student_name,
				in_time = EXCLUDED.in_time,
				out_time = EXCLUDED.out_time,
				avg_confidence = EXCLUDED.avg_confidence
		`, sessionID, rec.StudentID, rec.StudentName, rec.InTime, rec.OutTime, rec.AvgConfidence)
		if err != nil {
			return fmt.Errorf("save attendance record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance records: %w", err)
	}
	return nil
}

// ListRecords returns the session's attendance records ordered by student.
func (r *RecordRepository) ListRecords(ctx context.Context, sessionID string) ([]store.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, student_id, student_name, in_time, out_time, avg_confidence
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY student_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	defer rows.Close()

	var records []store.AttendanceRecord
	for rows.Next() {
		var rec store.AttendanceRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.StudentID,
			&rec.StudentName,
			&rec.InTime,
			&rec.OutTime,
			&rec.AvgConfidence,
		); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// Repositories bundles the session and record repositories behind the
// store.Store interface.
type Repositories struct {
	*SessionRepository
	*RecordRepository
}

func NewRepositories(pool *Pool) *Repositories {
	return &Repositories{
		SessionRepository: NewSessionRepository(pool),
		RecordRepository:  NewRecordRepository(pool),
	}
}
