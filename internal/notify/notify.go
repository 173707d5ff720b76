// Package notify pushes attendance events to the external attendance API.
// Transition pings are fire-and-forget: the recognition loop must never wait
// on, or fail because of, the network.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloodei/apt-attendance/internal/attendance"
)

const pingTimeout = 2 * time.Second

// Notifier implements attendance.Sink over HTTP.
type Notifier struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

func New(baseURL string, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: pingTimeout},
		logger:  logger,
	}
}

// PingTransition posts one check-in/check-out event in the background and
// returns immediately. Failures are logged and dropped; the session flush
// carries the authoritative summary anyway.
func (n *Notifier) PingTransition(_ context.Context, t attendance.Transition) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()

		url := fmt.Sprintf("%s/api/v1/sessions/%s/attendance/ping", n.baseURL, t.SessionID)
		if err := n.post(ctx, url, t); err != nil {
			n.logger.Printf("attendance ping for student %d dropped: %v", t.StudentID, err)
		}
	}()
}

// FlushIntervals posts the full session summary. Unlike pings this runs on
// the caller's goroutine so session teardown can observe the outcome.
func (n *Notifier) FlushIntervals(ctx context.Context, sessionID string, intervals []attendance.Interval) error {
	url := fmt.Sprintf("%s/api/v1/sessions/%s/attendance/flush", n.baseURL, sessionID)
	payload := struct {
		SessionID string                `json:"session_id"`
		Intervals []attendance.Interval `json:"intervals"`
	}{
		SessionID: sessionID,
		Intervals: intervals,
	}
	if err := n.post(ctx, url, payload); err != nil {
		return fmt.Errorf("failed to flush attendance intervals: %w", err)
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("attendance API returned status %d", resp.StatusCode)
	}
	return nil
}
