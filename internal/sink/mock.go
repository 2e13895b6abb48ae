package sink

import (
	"context"
	"sync"

	"github.com/rzbill/funnel/internal/event"
)

// MockSink is a scriptable in-memory sink for tests and `--sink devnull`
// dry runs. With no script it acks everything.
type MockSink struct {
	mu sync.Mutex
	// script holds the error to return per call, in order; calls beyond the
	// script ack.
	script []error
	// delay, when set, is invoked before each call returns (e.g. to simulate
	// a slow downstream).
	delay func(ctx context.Context) error

	calls   int
	batches []*event.Batch
	closed  bool
}

// NewMock creates an always-acking MockSink.
func NewMock() *MockSink { return &MockSink{} }

// Script sets the per-call results. Call i returns script[i]; later calls ack.
func (s *MockSink) Script(results ...error) *MockSink {
	s.mu.Lock()
	s.script = results
	s.mu.Unlock()
	return s
}

// WithDelay installs a hook run before each Send returns.
func (s *MockSink) WithDelay(fn func(ctx context.Context) error) *MockSink {
	s.mu.Lock()
	s.delay = fn
	s.mu.Unlock()
	return s
}

// Send implements Sink.
func (s *MockSink) Send(ctx context.Context, batch *event.Batch) error {
	s.mu.Lock()
	call := s.calls
	s.calls++
	delay := s.delay
	var scripted error
	if call < len(s.script) {
		scripted = s.script[call]
	}
	s.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return err
		}
	}
	if scripted != nil {
		return scripted
	}

	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.mu.Unlock()
	return nil
}

// Close implements Sink.
func (s *MockSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Calls returns how many times Send ran.
func (s *MockSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Delivered returns the acked batches in delivery order.
func (s *MockSink) Delivered() []*event.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*event.Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

// DeliveredEventIDs flattens the acked batches into event IDs in delivery
// order.
func (s *MockSink) DeliveredEventIDs() []string {
	var out []string
	for _, b := range s.Delivered() {
		out = append(out, b.EventIDs()...)
	}
	return out
}
