package attendance

import "context"

// MultiSink delivers every event to all wrapped sinks. Flush errors are
// collected into the first non-nil error so teardown still reaches every
// sink.
type MultiSink []Sink

func (m MultiSink) PingTransition(ctx context.Context, t Transition) {
	for _, s := range m {
		s.PingTransition(ctx, t)
	}
}

func (m MultiSink) FlushIntervals(ctx context.Context, sessionID string, intervals []Interval) error {
	var firstErr error
	for _, s := range m {
		if err := s.FlushIntervals(ctx, sessionID, intervals); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
