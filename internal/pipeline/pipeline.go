package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/funnel/internal/batcher"
	"github.com/rzbill/funnel/internal/event"
	"github.com/rzbill/funnel/internal/filter"
	"github.com/rzbill/funnel/internal/journal"
	"github.com/rzbill/funnel/internal/metrics"
	"github.com/rzbill/funnel/internal/queue"
	"github.com/rzbill/funnel/internal/sink"
	"github.com/rzbill/funnel/internal/submitter"
	"github.com/rzbill/funnel/pkg/id"
	"github.com/rzbill/funnel/pkg/log"
)

// ErrFiltered is returned by Submit when the ingest filter rejects the
// payload. The event was never accepted, so the at-least-once guarantee
// does not apply to it.
var ErrFiltered = errors.New("pipeline: event filtered")

// Config assembles the pipeline's tunables.
type Config struct {
	// QueueCapacity bounds the in-memory queue; a full queue rejects offers.
	QueueCapacity int
	// Batch controls the batcher's size/age triggers.
	Batch batcher.Config
	// Submit controls the retry policy.
	Submit submitter.Config
	// GraceWindow bounds the shutdown flush. Zero defaults to 10s.
	GraceWindow time.Duration
	// Filter is an optional CEL expression applied at the gate.
	Filter filter.Filter
}

// Receipt acknowledges an accepted event.
type Receipt struct {
	EventID    string
	ReceivedAt time.Time
}

// Pipeline owns the queue → batcher → submitter flow and its shutdown.
type Pipeline struct {
	cfg    Config
	q      *queue.Queue
	b      *batcher.Batcher
	sub    *submitter.Submitter
	jrnl   *journal.Journal
	mtr    *metrics.Metrics
	gen    *id.Generator
	logger log.Logger

	state atomic.Int32

	// submitCtx is cancelled when the grace window expires, aborting any
	// in-flight or still-queued submissions.
	submitCtx    context.Context
	submitCancel context.CancelFunc

	shutdownOnce sync.Once
	workerDone   chan struct{}
	terminated   chan struct{}
}

// New builds a pipeline delivering to s. jrnl and mtr may be nil.
func New(cfg Config, s sink.Sink, jrnl *journal.Journal, mtr *metrics.Metrics, logger log.Logger) *Pipeline {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = 10 * time.Second
	}
	q := queue.New(cfg.QueueCapacity)
	submitCtx, submitCancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:          cfg,
		q:            q,
		b:            batcher.New(cfg.Batch, q, logger),
		sub:          submitter.New(cfg.Submit, s, logger, mtr),
		jrnl:         jrnl,
		mtr:          mtr,
		gen:          id.NewGenerator(),
		logger:       logger.With(log.Component("pipeline")),
		submitCtx:    submitCtx,
		submitCancel: submitCancel,
		workerDone:   make(chan struct{}),
		terminated:   make(chan struct{}),
	}
	return p
}

// Submit offers one event to the pipeline. It returns immediately:
// a Receipt on acceptance, queue.ErrFull under backpressure, queue.ErrClosed
// once draining has begun, or ErrFiltered when the ingest filter rejects.
// Downstream delivery errors never reach producers; by the time they occur
// the producer already holds a Receipt.
func (p *Pipeline) Submit(_ context.Context, payload []byte, headers map[string]string) (Receipt, error) {
	if !p.cfg.Filter.Accept(payload, headers) {
		p.mtr.IncRejected("filtered")
		return Receipt{}, ErrFiltered
	}
	ev := &event.Event{
		ID:         p.gen.Next(),
		Payload:    payload,
		Headers:    headers,
		ReceivedAt: time.Now(),
	}
	if err := p.q.Offer(ev); err != nil {
		switch err {
		case queue.ErrFull:
			p.mtr.IncRejected("full")
		case queue.ErrClosed:
			p.mtr.IncRejected("closed")
		}
		return Receipt{}, err
	}
	p.mtr.IncAccepted()
	p.mtr.SetQueueDepth(p.q.Stats().Depth)
	return Receipt{EventID: ev.ID.String(), ReceivedAt: ev.ReceivedAt}, nil
}

// Run starts the batcher and the single submit worker, then blocks until
// the pipeline terminates. Cancelling ctx triggers the shutdown protocol
// with the configured grace window; it never discards queued work directly.
func (p *Pipeline) Run(ctx context.Context) error {
	go p.b.Run(context.Background())
	go p.worker()

	select {
	case <-ctx.Done():
		p.RequestShutdown(p.cfg.GraceWindow)
		return nil
	case <-p.terminated:
		return nil
	}
}

// worker is the only consumer of the sealed-batch lane: one submission in
// flight, seal order preserved end to end.
func (p *Pipeline) worker() {
	defer close(p.workerDone)
	for batch := range p.b.Out() {
		p.mtr.IncBatchSealed()
		p.mtr.SetQueueDepth(p.q.Stats().Depth)
		outcome := p.sub.Submit(p.submitCtx, batch)
		p.record(batch, outcome)
	}
}

// record handles a batch's terminal outcome. Undelivered batches are the
// pipeline's loss paths and must be observable: event IDs are logged,
// journaled, and counted.
func (p *Pipeline) record(batch *event.Batch, outcome event.Outcome) {
	if outcome.Delivered() {
		return
	}
	p.logger.Error("batch lost",
		log.Str("batch", batch.ID),
		log.Str("outcome", outcome.String()),
		log.Int("events", batch.Len()),
		log.Strs("event_ids", batch.EventIDs()),
	)
	if err := p.jrnl.RecordLost(context.Background(), batch, outcome); err != nil {
		p.logger.Error("journal write failed", log.Str("batch", batch.ID), log.Err(err))
	}
	p.mtr.AddEventsLost(batch.Len())
}

// RequestShutdown starts the drain protocol and blocks until the pipeline
// reaches Terminated. Idempotent: repeated calls (with any grace value)
// join the first shutdown rather than restarting it.
func (p *Pipeline) RequestShutdown(grace time.Duration) {
	p.shutdownOnce.Do(func() {
		if grace <= 0 {
			grace = p.cfg.GraceWindow
		}
		go p.shutdown(grace)
	})
	<-p.terminated
}

func (p *Pipeline) shutdown(grace time.Duration) {
	deadline := time.AfterFunc(grace, p.submitCancel)
	defer deadline.Stop()

	p.setState(StateDraining)
	p.logger.Info("shutdown requested", log.Dur("grace_window", grace))
	p.q.Close()

	p.b.Drain()
	<-p.b.Done()

	p.setState(StateFlushing)
	<-p.workerDone

	p.setState(StateTerminated)
	close(p.terminated)
	p.logger.Info("pipeline terminated")
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// AwaitTerminated blocks until the pipeline terminates or ctx is done.
func (p *Pipeline) AwaitTerminated(ctx context.Context) error {
	select {
	case <-p.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueStats exposes the queue's occupancy for health endpoints.
func (p *Pipeline) QueueStats() queue.Stats { return p.q.Stats() }

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.logger.Debug("state transition", log.Str("state", s.String()))
}
