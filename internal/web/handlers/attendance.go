package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloodei/apt-attendance/internal/store"
)

// SightingObserver routes externally reported sightings into a session's
// attendance tracker.
type SightingObserver interface {
	Observe(ctx context.Context, sessionID string, studentID int64, confidence float64) error
}

type AttendanceHandler struct {
	store    store.Store
	observer SightingObserver
	logger   *log.Logger
}

func NewAttendanceHandler(st store.Store, observer SightingObserver, logger *log.Logger) *AttendanceHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &AttendanceHandler{store: st, observer: observer, logger: logger}
}

type pingRequest struct {
	StudentID  int64   `json:"student_id"`
	Confidence float64 `json:"confidence"`
}

// Ping accepts a confirmed sighting from an external recognition pipeline
// and feeds it through the same debounce state machine as local streams.
func (h *AttendanceHandler) Ping(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req pingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.StudentID == 0 {
		respondError(w, http.StatusBadRequest, "student_id is required")
		return
	}

	if err := h.observer.Observe(r.Context(), id, req.StudentID, req.Confidence); err != nil {
		respondError(w, http.StatusNotFound, "no active session")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Records lists the persisted attendance records of a session.
func (h *AttendanceHandler) Records(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	records, err := h.store.ListRecords(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Printf("failed to list records for session %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance records")
		return
	}
	if records == nil {
		records = []store.AttendanceRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}
