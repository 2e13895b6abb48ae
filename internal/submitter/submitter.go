package submitter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rzbill/funnel/internal/event"
	"github.com/rzbill/funnel/internal/metrics"
	"github.com/rzbill/funnel/internal/sink"
	"github.com/rzbill/funnel/pkg/backoff"
	"github.com/rzbill/funnel/pkg/log"
)

// Config bounds the retry policy.
type Config struct {
	// MaxAttempts caps downstream send attempts per batch (first try
	// included). Values below 1 default to 5.
	MaxAttempts int
	// Backoff schedules the delay between attempts. Zero value uses
	// backoff.Default().
	Backoff backoff.Policy
}

// Submitter delivers batches through a sink with bounded retry.
type Submitter struct {
	cfg    Config
	sink   sink.Sink
	logger log.Logger
	mtr    *metrics.Metrics
	tracer trace.Tracer
}

// New creates a Submitter around the given sink.
func New(cfg Config, s sink.Sink, logger log.Logger, mtr *metrics.Metrics) *Submitter {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.Default()
	}
	return &Submitter{
		cfg:    cfg,
		sink:   s,
		logger: logger.With(log.Component("submitter")),
		mtr:    mtr,
		tracer: otel.Tracer("funnel/submitter"),
	}
}

// Submit delivers one batch and returns its terminal outcome. It blocks for
// the duration of sink calls and backoff sleeps; cancelling ctx (grace
// window expiry) makes it return OutcomeDeadlineExceeded promptly.
func (s *Submitter) Submit(ctx context.Context, batch *event.Batch) event.Outcome {
	ctx, span := s.tracer.Start(ctx, "funnel.submit", trace.WithAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.Int("batch.events", batch.Len()),
	))
	defer span.End()

	start := time.Now()
	outcome := s.submit(ctx, batch)
	span.SetAttributes(attribute.String("batch.outcome", outcome.String()))
	if !outcome.Delivered() {
		span.SetStatus(codes.Error, outcome.String())
	}
	s.mtr.ObserveOutcome(outcome.String(), time.Since(start))
	return outcome
}

func (s *Submitter) submit(ctx context.Context, batch *event.Batch) event.Outcome {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return event.OutcomeDeadlineExceeded
		}

		s.mtr.IncAttempt()
		err := s.sink.Send(ctx, batch)
		if err == nil {
			s.logger.Debug("batch delivered",
				log.Str("batch", batch.ID),
				log.Int("events", batch.Len()),
				log.Int("attempts", attempt),
			)
			return event.OutcomeDelivered
		}
		if ctx.Err() != nil {
			return event.OutcomeDeadlineExceeded
		}

		retryable, reason := sink.Classify(err)
		if !retryable {
			s.logger.Error("batch rejected by sink",
				log.Str("batch", batch.ID),
				log.Str("reason", reason),
				log.Err(err),
				log.Strs("event_ids", batch.EventIDs()),
			)
			return event.OutcomeFatal
		}
		if attempt >= s.cfg.MaxAttempts {
			s.logger.Error("batch retries exhausted",
				log.Str("batch", batch.ID),
				log.Int("attempts", attempt),
				log.Str("reason", reason),
				log.Err(err),
				log.Strs("event_ids", batch.EventIDs()),
			)
			return event.OutcomeRetriesExhausted
		}

		s.mtr.IncRetry(reason)
		delay := s.cfg.Backoff.Delay(attempt)
		s.logger.Warn("batch send failed, retrying",
			log.Str("batch", batch.ID),
			log.Int("attempt", attempt),
			log.Str("reason", reason),
			log.Dur("backoff", delay),
			log.Err(err),
		)
		if err := backoff.Wait(ctx, delay); err != nil {
			return event.OutcomeDeadlineExceeded
		}
	}
}
