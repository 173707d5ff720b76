package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/cloodei/apt-attendance/internal/vision"
)

// FrameQueue is the bounded buffer between a frame producer (decoder, ingest
// endpoint) and the inference consumer. The producer never blocks: when the
// queue is full the incoming frame is dropped, bounding both memory and
// end-to-end latency. The temporal vote smoother already tolerates missing
// frames, so an occasional drop is acceptable.
type FrameQueue struct {
	ch        chan *vision.Frame
	closeOnce sync.Once
	done      chan struct{}
}

// NewFrameQueue creates a queue holding at most size frames.
func NewFrameQueue(size int) *FrameQueue {
	if size <= 0 {
		size = 8
	}
	return &FrameQueue{
		ch:   make(chan *vision.Frame, size),
		done: make(chan struct{}),
	}
}

// Offer enqueues a frame without blocking. It returns false when the frame
// was dropped because the queue is full or closed.
func (q *FrameQueue) Offer(f *vision.Frame) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.ch <- f:
		return true
	default:
		return false
	}
}

// Next blocks until a frame arrives, the timeout elapses, the context is
// cancelled, or the queue is closed. It returns ok=false with a nil frame in
// the latter three cases; callers substitute a placeholder and continue.
func (q *FrameQueue) Next(ctx context.Context, timeout time.Duration) (*vision.Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.ch:
		return f, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	case <-q.done:
		return nil, false
	}
}

// Close releases the queue; further Offer calls drop their frames.
func (q *FrameQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Closed reports whether the queue has been released.
func (q *FrameQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered frames.
func (q *FrameQueue) Len() int { return len(q.ch) }
