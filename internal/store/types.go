// Package store persists class sessions and attendance records. The
// interfaces are small on purpose; handlers depend on the capability they
// need, not on a concrete backend.
package store

import "time"

// Session is one tracked class meeting. EndedAt stays nil while the session
// is live.
type Session struct {
	ID        string     `json:"id"`
	ClassName string     `json:"class_name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Roster    map[int64]string `json:"roster,omitempty"`
}

// Active reports whether the session is still running.
func (s *Session) Active() bool { return s.EndedAt == nil }

// AttendanceRecord is the persisted per-student outcome of a session.
type AttendanceRecord struct {
	ID            int64      `json:"id"`
	SessionID     string     `json:"session_id"`
	StudentID     int64      `json:"student_id"`
	StudentName   string     `json:"student_name"`
	InTime        time.Time  `json:"in_time"`
	OutTime       *time.Time `json:"out_time,omitempty"`
	AvgConfidence *float64   `json:"avg_confidence,omitempty"`
}
