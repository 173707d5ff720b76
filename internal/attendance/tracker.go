// Package attendance turns confirmed identity sightings into debounced
// check-in / check-out state per student and flushes the resulting intervals
// when the session ends.
package attendance

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cloodei/apt-attendance/internal/roster"
)

// DefaultDebounce is the minimum gap between two presence transitions of the
// same student. Sightings inside the gap only refine the confidence average.
const DefaultDebounce = 30 * time.Second

// Transition is a single check-in or check-out event.
type Transition struct {
	SessionID  string    `json:"session_id"`
	StudentID  int64     `json:"student_id"`
	Action     string    `json:"action"` // "in" or "out"
	Time       time.Time `json:"time"`
	Confidence float64   `json:"confidence"`
}

// Interval is the per-student attendance summary emitted by Flush. OutTime is
// nil when the student was still present at session end; AvgConfidence is nil
// when no sighting carried a confidence.
type Interval struct {
	StudentID     int64      `json:"student_id"`
	StudentName   string     `json:"student_name"`
	InTime        time.Time  `json:"in_time"`
	OutTime       *time.Time `json:"out_time,omitempty"`
	AvgConfidence *float64   `json:"avg_confidence,omitempty"`
}

// Sink receives attendance events. PingTransition must not block the caller;
// FlushIntervals delivers the session summary exactly once.
type Sink interface {
	PingTransition(ctx context.Context, t Transition)
	FlushIntervals(ctx context.Context, sessionID string, intervals []Interval) error
}

type record struct {
	inTime         time.Time
	outTime        *time.Time
	lastTransition time.Time
	present        bool
	confidenceSum  float64
	observations   int
}

// Tracker holds the attendance state of one session. It is safe for
// concurrent use; both the stream goroutine and the web ping endpoint feed it.
type Tracker struct {
	sessionID string
	roster    *roster.Roster
	debounce  time.Duration
	sink      Sink
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex
	records map[int64]*record
	flushed bool
}

func NewTracker(sessionID string, r *roster.Roster, debounce time.Duration, sink Sink, logger *log.Logger) *Tracker {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{
		sessionID: sessionID,
		roster:    r,
		debounce:  debounce,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
		records:   make(map[int64]*record),
	}
}

// Observe records one confirmed sighting. Students not on the session roster
// are dropped without creating state. The first sighting checks the student
// in; later sightings inside the debounce window only update the confidence
// aggregate, while a sighting past the window toggles presence.
func (t *Tracker) Observe(ctx context.Context, studentID int64, confidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flushed {
		return
	}
	if !t.roster.Contains(studentID) {
		t.logger.Printf("session %s: dropping off-roster sighting of student %d", t.sessionID, studentID)
		return
	}

	now := t.now()

	rec, ok := t.records[studentID]
	if !ok {
		t.records[studentID] = &record{
			inTime:         now,
			lastTransition: now,
			present:        true,
			confidenceSum:  confidence,
			observations:   1,
		}
		t.ping(ctx, studentID, "in", now, confidence)
		return
	}

	rec.confidenceSum += confidence
	rec.observations++

	if now.Sub(rec.lastTransition) < t.debounce {
		return
	}

	rec.lastTransition = now
	if rec.present {
		out := now
		rec.outTime = &out
		rec.present = false
		t.ping(ctx, studentID, "out", now, confidence)
	} else {
		// The student came back; the interval is open again.
		rec.outTime = nil
		rec.present = true
		t.ping(ctx, studentID, "in", now, confidence)
	}
}

func (t *Tracker) ping(ctx context.Context, studentID int64, action string, at time.Time, confidence float64) {
	if t.sink == nil {
		return
	}
	t.sink.PingTransition(ctx, Transition{
		SessionID:  t.sessionID,
		StudentID:  studentID,
		Action:     action,
		Time:       at,
		Confidence: confidence,
	})
}

// Flush emits the session summary to the sink and returns it. Only the first
// call delivers; repeated calls return nil. Delivery failures are logged, the
// tracker still counts as flushed.
func (t *Tracker) Flush(ctx context.Context) []Interval {
	t.mu.Lock()
	if t.flushed {
		t.mu.Unlock()
		return nil
	}
	t.flushed = true

	intervals := make([]Interval, 0, len(t.records))
	for id, rec := range t.records {
		name, _ := t.roster.Name(id)
		iv := Interval{
			StudentID:   id,
			StudentName: name,
			InTime:      rec.inTime,
			OutTime:     rec.outTime,
		}
		if rec.observations > 0 {
			avg := rec.confidenceSum / float64(rec.observations)
			iv.AvgConfidence = &avg
		}
		intervals = append(intervals, iv)
	}
	t.mu.Unlock()

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].StudentID < intervals[j].StudentID
	})

	if t.sink != nil && len(intervals) > 0 {
		if err := t.sink.FlushIntervals(ctx, t.sessionID, intervals); err != nil {
			t.logger.Printf("session %s: failed to flush %d attendance intervals: %v", t.sessionID, len(intervals), err)
		}
	}

	return intervals
}

// Flushed reports whether the session summary has already been emitted.
func (t *Tracker) Flushed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushed
}

// Present reports whether the student is currently checked in.
func (t *Tracker) Present(studentID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[studentID]
	return ok && rec.present
}
