package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloodei/apt-attendance/internal/stream"
)

// SightingSource hands out live sighting channels per session.
type SightingSource interface {
	Subscribe(sessionID string) (<-chan stream.Sighting, func())
	Active(sessionID string) bool
}

type EventsHandler struct {
	source SightingSource
}

func NewEventsHandler(source SightingSource) *EventsHandler {
	return &EventsHandler{source: source}
}

// Stream serves the session's confirmed sightings as server-sent events
// until the client disconnects or the session ends.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.source.Active(id) {
		respondError(w, http.StatusNotFound, "no active session")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, cancel := h.source.Subscribe(id)
	defer cancel()

	sendSSEEvent(w, flusher, "connected", map[string]string{"session_id": id})

	for {
		select {
		case <-r.Context().Done():
			return
		case sg, ok := <-events:
			if !ok {
				// Session ended; tell the client before closing.
				sendSSEEvent(w, flusher, "ended", map[string]string{"session_id": id})
				return
			}
			sendSSEEvent(w, flusher, "sighting", sg)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}
