package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/funnel/pkg/id"
)

// Event is an immutable accepted unit of work.
type Event struct {
	// ID is assigned at acceptance and is lexicographically sortable by
	// acceptance time.
	ID id.ID
	// Payload is opaque to the pipeline.
	Payload []byte
	// Headers carries optional producer metadata, passed through to sinks.
	Headers map[string]string
	// ReceivedAt is the acceptance timestamp; the batcher's age trigger and
	// batch MaxWait bound are measured from the oldest member's ReceivedAt.
	ReceivedAt time.Time
}

// Batch is an ordered, sealed group of events submitted together.
// Order is enqueue order and is never re-sorted.
type Batch struct {
	ID       string
	Events   []*Event
	SealedAt time.Time
	// Forced marks a shutdown-forced partial batch, which is exempt from the
	// MaxWait bound.
	Forced bool
}

// NewBatch seals events into a batch. The caller must not modify events
// afterwards.
func NewBatch(events []*Event, forced bool) *Batch {
	return &Batch{
		ID:       uuid.New().String(),
		Events:   events,
		SealedAt: time.Now(),
		Forced:   forced,
	}
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int { return len(b.Events) }

// OldestAge returns how long the oldest member has been waiting at now.
func (b *Batch) OldestAge(now time.Time) time.Duration {
	if len(b.Events) == 0 {
		return 0
	}
	return now.Sub(b.Events[0].ReceivedAt)
}

// EventIDs returns the contained event identifiers in order. Used verbatim
// in lost-batch reports.
func (b *Batch) EventIDs() []string {
	out := make([]string, len(b.Events))
	for i, ev := range b.Events {
		out[i] = ev.ID.String()
	}
	return out
}

// Outcome is the terminal result of submitting one batch.
type Outcome int

const (
	// OutcomeDelivered means the sink acknowledged the batch.
	OutcomeDelivered Outcome = iota
	// OutcomeRetriesExhausted means every allowed attempt failed retryably.
	OutcomeRetriesExhausted
	// OutcomeFatal means the sink rejected the batch non-retryably.
	OutcomeFatal
	// OutcomeDeadlineExceeded means the context (grace window) expired before
	// a terminal sink answer.
	OutcomeDeadlineExceeded
)

// String returns the outcome name used in logs and metrics labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRetriesExhausted:
		return "retries_exhausted"
	case OutcomeFatal:
		return "fatal"
	case OutcomeDeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}

// Delivered reports whether the outcome is a successful delivery.
func (o Outcome) Delivered() bool { return o == OutcomeDelivered }
