package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloodei/apt-attendance/internal/store"
)

type fakeManager struct {
	started map[string]map[int64]string
	ended   []string
	active  map[string]bool

	startErr error
	endErr   error
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		started: make(map[string]map[int64]string),
		active:  make(map[string]bool),
	}
}

func (m *fakeManager) StartSession(sessionID string, names map[int64]string, _ time.Time) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started[sessionID] = names
	m.active[sessionID] = true
	return nil
}

func (m *fakeManager) EndSession(sessionID string) error {
	if m.endErr != nil {
		return m.endErr
	}
	m.ended = append(m.ended, sessionID)
	delete(m.active, sessionID)
	return nil
}

func (m *fakeManager) Active(sessionID string) bool { return m.active[sessionID] }

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newSessionsRouter(st store.Store, m StreamManager, loader RosterLoader) *chi.Mux {
	h := NewSessionsHandler(st, m, loader, discardLogger())
	r := chi.NewRouter()
	r.Post("/sessions", h.Create)
	r.Get("/sessions", h.List)
	r.Get("/sessions/{id}", h.Get)
	r.Post("/sessions/{id}/end", h.End)
	return r
}

func TestCreateSessionWithInlineRoster(t *testing.T) {
	st := store.NewMemory()
	m := newFakeManager()
	r := newSessionsRouter(st, m, nil)

	body := `{"class_name":"CS101","roster":[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}],"duration_minutes":45}`
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created store.Session
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated session ID")
	}
	if created.ClassName != "CS101" {
		t.Errorf("expected class CS101, got %q", created.ClassName)
	}

	if names := m.started[created.ID]; names[1] != "Alice" || names[2] != "Bob" {
		t.Errorf("expected roster forwarded to the stream manager, got %+v", names)
	}
	if _, err := st.GetSession(context.Background(), created.ID); err != nil {
		t.Errorf("expected session persisted, got %v", err)
	}
}

func TestCreateSessionLoadsRosterFromClass(t *testing.T) {
	st := store.NewMemory()
	m := newFakeManager()
	loader := func(_ context.Context, classID int64) (map[int64]string, error) {
		if classID != 7 {
			t.Errorf("expected class 7, got %d", classID)
		}
		return map[int64]string{10: "Grace"}, nil
	}
	r := newSessionsRouter(st, m, loader)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(`{"class_id":7}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created store.Session
	json.NewDecoder(rec.Body).Decode(&created)
	if names := m.started[created.ID]; names[10] != "Grace" {
		t.Errorf("expected loaded roster, got %+v", names)
	}
}

func TestCreateSessionRejectsEmptyRoster(t *testing.T) {
	r := newSessionsRouter(store.NewMemory(), newFakeManager(), nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"no roster no class", `{"class_name":"CS101"}`, http.StatusBadRequest},
		{"class without loader", `{"class_id":7}`, http.StatusBadRequest},
		{"malformed json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestCreateSessionLoaderFailure(t *testing.T) {
	loader := func(context.Context, int64) (map[int64]string, error) {
		return nil, errors.New("sis unreachable")
	}
	r := newSessionsRouter(store.NewMemory(), newFakeManager(), loader)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(`{"class_id":7}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestCreateSessionClosesStoredSessionOnStreamFailure(t *testing.T) {
	st := store.NewMemory()
	m := newFakeManager()
	m.startErr = errors.New("stream exploded")
	r := newSessionsRouter(st, m, nil)

	body := `{"class_name":"CS101","roster":[{"id":1,"name":"Alice"}]}`
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	sessions, err := st.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("listing sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one persisted session, got %d", len(sessions))
	}
	if sessions[0].Active() {
		t.Error("expected the session to be closed after the stream failed to start")
	}
}

func TestGetSession(t *testing.T) {
	st := store.NewMemory()
	m := newFakeManager()
	st.CreateSession(context.Background(), &store.Session{ID: "s-1", StartedAt: time.Now()})
	m.active["s-1"] = true

	r := newSessionsRouter(st, m, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions/s-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Live bool `json:"live"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Live {
		t.Error("expected session to report live")
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/missing", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing session, got %d", rec.Code)
	}
}

func TestEndSession(t *testing.T) {
	st := store.NewMemory()
	m := newFakeManager()
	st.CreateSession(context.Background(), &store.Session{ID: "s-1", StartedAt: time.Now()})
	m.active["s-1"] = true

	r := newSessionsRouter(st, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/sessions/s-1/end", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(m.ended) != 1 || m.ended[0] != "s-1" {
		t.Errorf("expected stream ended, got %+v", m.ended)
	}
	got, _ := st.GetSession(context.Background(), "s-1")
	if got.Active() {
		t.Error("expected session marked ended in the store")
	}
}

func TestEndSessionToleratesDeadStream(t *testing.T) {
	st := store.NewMemory()
	m := newFakeManager()
	m.endErr = errors.New("no active stream")
	st.CreateSession(context.Background(), &store.Session{ID: "s-1", StartedAt: time.Now()})

	r := newSessionsRouter(st, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/sessions/s-1/end", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected ending a session with a dead stream to succeed, got %d", rec.Code)
	}
}
