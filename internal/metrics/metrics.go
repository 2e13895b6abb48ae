package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Funnel's Prometheus collectors, namespaced "funnel_".
type Metrics struct {
	queueDepth    prometheus.Gauge
	accepted      prometheus.Counter
	rejected      *prometheus.CounterVec
	batchesSealed prometheus.Counter
	outcomes      *prometheus.CounterVec
	attempts      prometheus.Counter
	retries       *prometheus.CounterVec
	eventsLost    prometheus.Counter
	submitLatency prometheus.Histogram
}

// New registers all collectors with the given registry
// (prometheus.DefaultRegisterer when nil).
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "funnel",
			Name:      "queue_depth",
			Help:      "Current number of accepted events buffered in the bounded queue",
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "funnel",
			Name:      "events_accepted_total",
			Help:      "Events accepted by the ingestion gate",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "funnel",
			Name:      "events_rejected_total",
			Help:      "Events rejected by the ingestion gate",
		}, []string{"reason"}), // reason: full, closed, filtered, invalid
		batchesSealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "funnel",
			Name:      "batches_sealed_total",
			Help:      "Batches sealed by the batcher",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "funnel",
			Name:      "batch_outcomes_total",
			Help:      "Terminal submission outcomes per batch",
		}, []string{"outcome"}), // outcome: delivered, retries_exhausted, fatal, deadline_exceeded
		attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "funnel",
			Name:      "submit_attempts_total",
			Help:      "Individual downstream send attempts",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "funnel",
			Name:      "submit_retries_total",
			Help:      "Retried downstream send attempts",
		}, []string{"reason"}),
		eventsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "funnel",
			Name:      "events_lost_total",
			Help:      "Events reported lost when the shutdown grace window elapsed",
		}),
		submitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "funnel",
			Name:      "submit_latency_seconds",
			Help:      "Wall time from first attempt to terminal outcome per batch",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// SetQueueDepth records the queue's current occupancy.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// IncAccepted counts an accepted event.
func (m *Metrics) IncAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

// IncRejected counts a rejected event by reason.
func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// IncBatchSealed counts a sealed batch.
func (m *Metrics) IncBatchSealed() {
	if m == nil {
		return
	}
	m.batchesSealed.Inc()
}

// ObserveOutcome records a batch's terminal outcome and submit latency.
func (m *Metrics) ObserveOutcome(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.submitLatency.Observe(elapsed.Seconds())
}

// IncAttempt counts one downstream send attempt.
func (m *Metrics) IncAttempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

// IncRetry counts a retried attempt by failure reason.
func (m *Metrics) IncRetry(reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(reason).Inc()
}

// AddEventsLost counts events reported lost at grace-window expiry.
func (m *Metrics) AddEventsLost(n int) {
	if m == nil {
		return
	}
	m.eventsLost.Add(float64(n))
}
