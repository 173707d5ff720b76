package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cloodei/apt-attendance/internal/attendance"
	"github.com/cloodei/apt-attendance/internal/config"
	"github.com/cloodei/apt-attendance/internal/gallery"
	"github.com/cloodei/apt-attendance/internal/inference"
	"github.com/cloodei/apt-attendance/internal/pipeline"
	"github.com/cloodei/apt-attendance/internal/roster"
	"github.com/cloodei/apt-attendance/internal/vision"
)

// Deps are the read-only components shared by every stream.
type Deps struct {
	Locator  inference.FaceLocator
	Spoof    inference.SpoofClassifier
	Embedder inference.FaceEmbedder
	Resolver gallery.Resolver
	Sink     attendance.Sink
	Config   config.PipelineConfig
	Logger   *log.Logger
}

type entry struct {
	stream  *Stream
	tracker *attendance.Tracker
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager owns the active streams, one per live session, and fans confirmed
// sightings out to event subscribers.
type Manager struct {
	deps Deps

	mu          sync.Mutex
	entries     map[string]*entry
	subscribers map[string]map[chan Sighting]struct{}
}

func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Manager{
		deps:        deps,
		entries:     make(map[string]*entry),
		subscribers: make(map[string]map[chan Sighting]struct{}),
	}
}

// StartSession spins up the recognition loop for a session. An optional
// deadline stops recognition and flushes attendance when it passes.
func (m *Manager) StartSession(sessionID string, names map[int64]string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[sessionID]; ok {
		return fmt.Errorf("session %s already has an active stream", sessionID)
	}

	tracker := attendance.NewTracker(sessionID, roster.New(names), m.deps.Config.Debounce(), m.deps.Sink, m.deps.Logger)
	pipe := pipeline.New(m.deps.Locator, m.deps.Spoof, m.deps.Embedder, m.deps.Resolver, m.deps.Config, m.deps.Logger)
	queue := pipeline.NewFrameQueue(m.deps.Config.Frames.QueueSize)

	st := New(sessionID, queue, pipe, tracker, Options{
		PollTimeout: m.deps.Config.PollTimeout(),
		Deadline:    deadline,
		OnSighting:  m.publish,
		Logger:      m.deps.Logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{stream: st, tracker: tracker, cancel: cancel, done: make(chan struct{})}
	m.entries[sessionID] = e

	go func() {
		defer close(e.done)
		st.Run(ctx)
	}()

	return nil
}

// OfferFrame feeds one decoded frame to the session's stream.
func (m *Manager) OfferFrame(sessionID string, f *vision.Frame) (bool, error) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	m.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("no active stream for session %s", sessionID)
	}
	return e.stream.Offer(f), nil
}

// Observe routes an externally reported sighting (the attendance ping
// endpoint) into the session's tracker, so remote pipelines and local
// streams share the same debounce state.
func (m *Manager) Observe(ctx context.Context, sessionID string, studentID int64, confidence float64) error {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active stream for session %s", sessionID)
	}
	e.tracker.Observe(ctx, studentID, confidence)
	return nil
}

// EndSession stops the session's stream and waits for its final flush.
func (m *Manager) EndSession(sessionID string) error {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if ok {
		delete(m.entries, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active stream for session %s", sessionID)
	}

	e.stream.Close()
	e.cancel()
	<-e.done

	m.dropSubscribers(sessionID)
	return nil
}

// Active reports whether the session has a running stream.
func (m *Manager) Active(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[sessionID]
	return ok
}

// Subscribe registers a listener for the session's confirmed sightings. The
// returned cancel function must be called when the listener goes away.
func (m *Manager) Subscribe(sessionID string) (<-chan Sighting, func()) {
	ch := make(chan Sighting, 16)

	m.mu.Lock()
	subs, ok := m.subscribers[sessionID]
	if !ok {
		subs = make(map[chan Sighting]struct{})
		m.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if subs, ok := m.subscribers[sessionID]; ok {
			if _, present := subs[ch]; present {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(m.subscribers, sessionID)
			}
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// publish fans a sighting out to subscribers. Slow listeners drop events
// rather than stalling the recognition loop.
func (m *Manager) publish(sg Sighting) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subscribers[sg.SessionID] {
		select {
		case ch <- sg:
		default:
		}
	}
}

func (m *Manager) dropSubscribers(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subscribers[sessionID] {
		close(ch)
	}
	delete(m.subscribers, sessionID)
}

// Shutdown ends every active session, flushing all trackers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.EndSession(id); err != nil {
			m.deps.Logger.Printf("shutdown: %v", err)
		}
	}
}
