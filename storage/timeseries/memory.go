package timeseries

import (
	"context"
	"sync"
)

// MemorySink is an in-memory Sink used by tests and local development.
type MemorySink struct {
	mu     sync.Mutex
	points []Point
	fail   error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// WritePoints appends points, or returns the injected failure.
func (s *MemorySink) WritePoints(_ context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.points = append(s.points, points...)
	return nil
}

// Close is a no-op.
func (s *MemorySink) Close(context.Context) error {
	return nil
}

// Points returns a copy of everything written so far.
func (s *MemorySink) Points() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// FailWith makes subsequent writes return err. Pass nil to heal.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}
