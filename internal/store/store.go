package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a session or record does not exist.
var ErrNotFound = errors.New("not found")

// SessionReader retrieves sessions.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
}

// SessionWriter creates and ends sessions.
type SessionWriter interface {
	CreateSession(ctx context.Context, s *Session) error
	EndSession(ctx context.Context, id string) error
}

// RecordReader retrieves attendance records.
type RecordReader interface {
	ListRecords(ctx context.Context, sessionID string) ([]AttendanceRecord, error)
}

// RecordWriter persists attendance records. SaveRecords replaces the
// records of a session in one call so a repeated flush cannot duplicate them.
type RecordWriter interface {
	SaveRecords(ctx context.Context, sessionID string, records []AttendanceRecord) error
}

// Store bundles the full persistence surface.
type Store interface {
	SessionReader
	SessionWriter
	RecordReader
	RecordWriter
}
