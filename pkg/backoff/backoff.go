package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the per-retry delay.
	Max time.Duration
	// Factor multiplies the delay after each retry. Values below 1 are
	// treated as 2.
	Factor float64
	// Jitter adds up to this fraction of the delay as random spread, which
	// avoids thundering-herd retries against a recovering downstream.
	// 0 disables jitter; 0.2 is a reasonable default.
	Jitter float64
}

// Default returns the schedule used by the Submitter when none is configured:
// 100ms initial, doubling, capped at 5s, 20% jitter.
func Default() Policy {
	return Policy{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: 0.2}
}

// Delay returns the backoff delay before retry attempt n (1-based: n=1 is
// the delay between the first failure and the second attempt).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	initial := p.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	factor := p.Factor
	if factor < 1 {
		factor = 2
	}
	d := float64(initial)
	for i := 1; i < n; i++ {
		d *= factor
		if p.Max > 0 && d >= float64(p.Max) {
			d = float64(p.Max)
			break
		}
	}
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// Sleep blocks for the attempt-n delay or until ctx is done, whichever comes
// first. Returns ctx.Err() when interrupted, so callers can stop retrying
// the moment the grace window expires.
func (p Policy) Sleep(ctx context.Context, n int) error {
	return Wait(ctx, p.Delay(n))
}

// Wait blocks for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
