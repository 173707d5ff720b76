// Package stream runs one recognition loop per active camera session. Each
// stream owns its frame queue, pipeline and attendance tracker; nothing
// mutable is shared between streams, only the read-only model clients and
// gallery behind them.
package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cloodei/apt-attendance/internal/attendance"
	"github.com/cloodei/apt-attendance/internal/pipeline"
	"github.com/cloodei/apt-attendance/internal/vision"
)

const (
	defaultPollTimeout = 500 * time.Millisecond

	// Placeholder frame size used before the first real frame arrives.
	defaultFrameWidth  = 640
	defaultFrameHeight = 480
)

// Sighting is a confirmed observation enriched with its session, as fanned
// out to event subscribers.
type Sighting struct {
	SessionID  string    `json:"session_id"`
	StudentID  int64     `json:"student_id"`
	Similarity float64   `json:"similarity"`
	Time       time.Time `json:"time"`
}

// Stream consumes frames for a single session until the session deadline
// passes, the context is cancelled or Close is called. Teardown always
// flushes the tracker exactly once.
type Stream struct {
	sessionID   string
	queue       *pipeline.FrameQueue
	pipe        *pipeline.Pipeline
	tracker     *attendance.Tracker
	pollTimeout time.Duration
	deadline    time.Time // zero means no deadline
	onSighting  func(Sighting)
	logger      *log.Logger

	mu         sync.Mutex
	lastWidth  int
	lastHeight int
	seq        uint64
}

type Options struct {
	PollTimeout time.Duration
	Deadline    time.Time
	OnSighting  func(Sighting)
	Logger      *log.Logger
}

func New(sessionID string, queue *pipeline.FrameQueue, pipe *pipeline.Pipeline, tracker *attendance.Tracker, opts Options) *Stream {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Stream{
		sessionID:   sessionID,
		queue:       queue,
		pipe:        pipe,
		tracker:     tracker,
		pollTimeout: opts.PollTimeout,
		deadline:    opts.Deadline,
		onSighting:  opts.OnSighting,
		logger:      opts.Logger,
	}
}

// Offer feeds one frame into the stream without blocking. Dropped frames
// return false.
func (s *Stream) Offer(f *vision.Frame) bool {
	s.mu.Lock()
	s.seq++
	f.Seq = s.seq
	s.lastWidth = f.Width
	s.lastHeight = f.Height
	s.mu.Unlock()

	return s.queue.Offer(f)
}

// Run drives the recognition loop on the calling goroutine and returns after
// the session ends. The tracker flush runs on every exit path.
func (s *Stream) Run(ctx context.Context) {
	defer s.flush()

	for {
		if ctx.Err() != nil {
			return
		}
		if s.queue.Closed() {
			return
		}
		if !s.deadline.IsZero() && !time.Now().Before(s.deadline) {
			s.logger.Printf("session %s: deadline reached, stopping recognition", s.sessionID)
			return
		}

		frame, ok := s.queue.Next(ctx, s.pollTimeout)
		if !ok {
			if ctx.Err() != nil || s.queue.Closed() {
				return
			}
			// No frame in time; keep cadence with a blank frame so the
			// loop still observes the deadline.
			frame = s.placeholder()
		}

		sightings, err := s.pipe.ProcessFrame(ctx, frame)
		if err != nil {
			s.logger.Printf("session %s: frame %d dropped: %v", s.sessionID, frame.Seq, err)
			continue
		}

		for _, sg := range sightings {
			s.tracker.Observe(ctx, sg.StudentID, sg.Similarity)
			if s.onSighting != nil {
				s.onSighting(Sighting{
					SessionID:  s.sessionID,
					StudentID:  sg.StudentID,
					Similarity: sg.Similarity,
					Time:       time.Now(),
				})
			}
		}
	}
}

// Close stops the stream; a concurrent Run returns and flushes.
func (s *Stream) Close() {
	s.queue.Close()
}

func (s *Stream) placeholder() *vision.Frame {
	s.mu.Lock()
	w, h := s.lastWidth, s.lastHeight
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	if w == 0 || h == 0 {
		w, h = defaultFrameWidth, defaultFrameHeight
	}
	return vision.Placeholder(w, h, seq)
}

func (s *Stream) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if intervals := s.tracker.Flush(ctx); intervals != nil {
		s.logger.Printf("session %s: flushed %d attendance intervals", s.sessionID, len(intervals))
	}
}
