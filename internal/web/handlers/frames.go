package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloodei/apt-attendance/internal/vision"
)

// Keeps a single oversized upload from exhausting memory.
const maxFrameBytes = 16 << 20

// FrameSink accepts decoded frames for a session's stream.
type FrameSink interface {
	OfferFrame(sessionID string, f *vision.Frame) (bool, error)
}

type FramesHandler struct {
	sink   FrameSink
	logger *log.Logger
}

func NewFramesHandler(sink FrameSink, logger *log.Logger) *FramesHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &FramesHandler{sink: sink, logger: logger}
}

// Ingest accepts one encoded frame (JPEG, PNG or BMP), either as a raw body
// or as the "frame" part of a multipart form. A full queue drops the frame
// and still answers 202; the producer should keep sending.
func (h *FramesHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	data, err := readFrameBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing frame data")
		return
	}

	frame, err := vision.DecodeFrame(data, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "undecodable frame")
		return
	}

	accepted, err := h.sink.OfferFrame(id, frame)
	if err != nil {
		respondError(w, http.StatusNotFound, "no active session")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}

func readFrameBody(r *http.Request) ([]byte, error) {
	if file, _, err := r.FormFile("frame"); err == nil {
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, maxFrameBytes))
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
	if err != nil || len(data) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return data, nil
}
