package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used when no database is configured and as
// the test double for handlers.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	records  map[string][]AttendanceRecord
	nextID   int64

	// Error injection for tests.
	CreateError error
	SaveError   error
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*Session),
		records:  make(map[string][]AttendanceRecord),
		nextID:   1,
	}
}

func (m *Memory) CreateSession(_ context.Context, s *Session) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	if cp.Roster != nil {
		roster := make(map[int64]string, len(cp.Roster))
		for id, name := range cp.Roster {
			roster[id] = name
		}
		cp.Roster = roster
	}
	m.sessions[s.ID] = &cp
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListSessions(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (m *Memory) EndSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.EndedAt == nil {
		now := time.Now()
		s.EndedAt = &now
	}
	return nil
}

// SaveRecords replaces the session's records, so a repeated flush overwrites
// instead of appending.
func (m *Memory) SaveRecords(_ context.Context, sessionID string, records []AttendanceRecord) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}

	stored := make([]AttendanceRecord, len(records))
	copy(stored, records)
	for i := range stored {
		stored[i].ID = m.nextID
		m.nextID++
		stored[i].SessionID = sessionID
	}
	m.records[sessionID] = stored
	return nil
}

func (m *Memory) ListRecords(_ context.Context, sessionID string) ([]AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]AttendanceRecord, len(m.records[sessionID]))
	copy(out, m.records[sessionID])
	return out, nil
}
