package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cloodei/apt-attendance/internal/store"
)

// StreamManager is the slice of the stream manager the session handlers use.
type StreamManager interface {
	StartSession(sessionID string, names map[int64]string, deadline time.Time) error
	EndSession(sessionID string) error
	Active(sessionID string) bool
}

// RosterLoader fetches a class roster from the student information system.
type RosterLoader func(ctx context.Context, classID int64) (map[int64]string, error)

type SessionsHandler struct {
	store   store.Store
	manager StreamManager
	loader  RosterLoader
	logger  *log.Logger
}

func NewSessionsHandler(st store.Store, manager StreamManager, loader RosterLoader, logger *log.Logger) *SessionsHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &SessionsHandler{store: st, manager: manager, loader: loader, logger: logger}
}

type rosterEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type createSessionRequest struct {
	ClassName       string        `json:"class_name"`
	ClassID         int64         `json:"class_id,omitempty"`
	Roster          []rosterEntry `json:"roster,omitempty"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
}

// Create starts a new session. The roster comes either inline with the
// request or, given a class ID, from the student information system.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	names := make(map[int64]string, len(req.Roster))
	for _, e := range req.Roster {
		names[e.ID] = e.Name
	}
	if len(names) == 0 && req.ClassID != 0 {
		if h.loader == nil {
			respondError(w, http.StatusBadRequest, "no roster source configured for class lookups")
			return
		}
		loaded, err := h.loader(r.Context(), req.ClassID)
		if err != nil {
			h.logger.Printf("roster lookup for class %d failed: %v", req.ClassID, err)
			respondError(w, http.StatusBadGateway, "failed to load class roster")
			return
		}
		names = loaded
	}
	if len(names) == 0 {
		respondError(w, http.StatusBadRequest, "a session needs a roster or a class_id")
		return
	}

	session := &store.Session{
		ID:        uuid.NewString(),
		ClassName: req.ClassName,
		StartedAt: time.Now(),
		Roster:    names,
	}
	if err := h.store.CreateSession(r.Context(), session); err != nil {
		h.logger.Printf("failed to create session: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	var deadline time.Time
	if req.DurationMinutes > 0 {
		deadline = session.StartedAt.Add(time.Duration(req.DurationMinutes) * time.Minute)
	}
	if err := h.manager.StartSession(session.ID, names, deadline); err != nil {
		h.logger.Printf("failed to start stream for session %s: %v", session.ID, err)
		// The session is already persisted; close it so it does not linger
		// as a live session no stream will ever feed.
		if endErr := h.store.EndSession(r.Context(), session.ID); endErr != nil {
			h.logger.Printf("failed to close session %s after stream start failure: %v", session.ID, endErr)
		}
		respondError(w, http.StatusInternalServerError, "failed to start recognition stream")
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

// Get returns one session with its roster.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Printf("failed to get session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"live":    h.manager.Active(id),
	})
}

// List returns all sessions without rosters.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.logger.Printf("failed to list sessions: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// End closes the session: the stream stops, the tracker flushes its
// intervals into the store, and the session is marked ended.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetSession(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	} else if err != nil {
		h.logger.Printf("failed to get session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	// The stream may already be gone (deadline passed); the flush has
	// happened either way.
	if err := h.manager.EndSession(id); err != nil {
		h.logger.Printf("session %s: %v", sanitizeForLog(id), err)
	}

	if err := h.store.EndSession(r.Context(), id); err != nil {
		h.logger.Printf("failed to mark session %s ended: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
