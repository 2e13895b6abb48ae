package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/rzbill/funnel/internal/event"
	"github.com/rzbill/funnel/internal/queue"
	"github.com/rzbill/funnel/pkg/log"
)

// Config controls batch assembly triggers.
type Config struct {
	// MaxSize seals a batch when the pending count reaches it.
	MaxSize int
	// MaxWait seals a batch when the oldest pending event reaches this age.
	MaxWait time.Duration
}

// Batcher is the single consumer of the bounded queue.
type Batcher struct {
	cfg    Config
	q      *queue.Queue
	out    chan *event.Batch
	logger log.Logger

	drainOnce sync.Once
	drainCh   chan struct{}
	done      chan struct{}
}

// New creates a Batcher reading from q. Call Run exactly once.
func New(cfg Config, q *queue.Queue, logger log.Logger) *Batcher {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}
	return &Batcher{
		cfg:     cfg,
		q:       q,
		out:     make(chan *event.Batch, 1),
		logger:  logger.With(log.Component("batcher")),
		drainCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Out is the sealed-batch lane. It is closed after the final drain batches
// have been emitted.
func (b *Batcher) Out() <-chan *event.Batch { return b.out }

// Drain tells the batcher to seal its current partial batch, fold the
// queue's remaining events into final batches, emit them, and stop.
// Idempotent.
func (b *Batcher) Drain() {
	b.drainOnce.Do(func() { close(b.drainCh) })
}

// Done is closed once the batcher has sealed its last batch and closed Out.
func (b *Batcher) Done() <-chan struct{} { return b.done }

// Run consumes the queue until ctx is cancelled, Drain is called, or the
// queue is closed and empty. Cancellation does not discard pending events;
// every path through Run ends in finalize, which seals and emits whatever
// remains.
func (b *Batcher) Run(ctx context.Context) {
	defer close(b.done)
	defer close(b.out)

	// A drain request preempts any queue wait.
	tctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.drainCh:
			cancel()
		case <-tctx.Done():
		}
	}()

	var pending []*event.Event
	for {
		var wait time.Duration
		want := b.cfg.MaxSize - len(pending)
		if len(pending) > 0 {
			oldest := pending[0].ReceivedAt
			wait = b.cfg.MaxWait - time.Since(oldest)
			if wait <= 0 {
				pending = b.seal(pending, "age", false)
				continue
			}
		}

		evs, err := b.q.Take(tctx, want, wait)
		switch {
		case err == nil && evs == nil:
			// Age trigger: the oldest pending event hit MaxWait.
			pending = b.seal(pending, "age", false)
		case err == nil:
			pending = append(pending, evs...)
			if len(pending) >= b.cfg.MaxSize {
				pending = b.seal(pending, "size", false)
			}
		case err == queue.ErrClosed:
			b.finalize(pending, "closed")
			return
		default:
			// ctx cancelled or drain requested.
			b.finalize(pending, "drain")
			return
		}
	}
}

// seal hands the pending events off as one batch and resets accumulation.
// Returns the new (empty) pending slice once the lane has accepted the batch.
func (b *Batcher) seal(pending []*event.Event, reason string, forced bool) []*event.Event {
	if len(pending) == 0 {
		return pending
	}
	batch := event.NewBatch(pending, forced)
	b.out <- batch
	b.logger.Debug("batch sealed",
		log.Str("batch", batch.ID),
		log.Int("events", batch.Len()),
		log.Str("trigger", reason),
	)
	return nil
}

// finalize seals the current partial batch and folds any events still
// sitting in the queue into final batches respecting MaxSize.
func (b *Batcher) finalize(pending []*event.Event, reason string) {
	left := b.q.DrainAll()
	total := len(pending) + len(left)
	pending = b.seal(pending, reason, true)
	for len(left) > 0 {
		n := b.cfg.MaxSize
		if n > len(left) {
			n = len(left)
		}
		_ = b.seal(left[:n], reason, true)
		left = left[n:]
	}
	if total > 0 {
		b.logger.Info("batcher drained", log.Int("events", total), log.Str("trigger", reason))
	}
}
