package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/funnel/internal/event"
)

// Sink delivers sealed batches to the downstream service.
type Sink interface {
	// Send delivers one batch. nil means acked; otherwise the error's
	// classification (see Classify) decides whether the submitter retries.
	Send(ctx context.Context, batch *event.Batch) error
	// Close releases sink resources. Idempotent.
	Close() error
}

// Error is a classified downstream failure.
type Error struct {
	// Retryable marks transient faults (unavailable, throttled) the
	// submitter may retry with backoff.
	Retryable bool
	// Reason is a short stable label for logs and metrics.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sink: %s: %v", e.Reason, e.Err)
	}
	return "sink: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable constructs a transient failure.
func Retryable(reason string, err error) *Error {
	return &Error{Retryable: true, Reason: reason, Err: err}
}

// Fatal constructs a non-retryable failure.
func Fatal(reason string, err error) *Error {
	return &Error{Retryable: false, Reason: reason, Err: err}
}

// Classify extracts the retry decision and reason from a Send error.
// Unclassified errors count as retryable transport faults; context
// cancellation is not retryable (the grace window owns that decision).
func Classify(err error) (retryable bool, reason string) {
	if err == nil {
		return false, ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable, se.Reason
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, "cancelled"
	}
	return true, "transport"
}
