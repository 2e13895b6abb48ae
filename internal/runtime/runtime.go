package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rzbill/funnel/internal/batcher"
	cfgpkg "github.com/rzbill/funnel/internal/config"
	"github.com/rzbill/funnel/internal/filter"
	"github.com/rzbill/funnel/internal/journal"
	"github.com/rzbill/funnel/internal/metrics"
	"github.com/rzbill/funnel/internal/pipeline"
	"github.com/rzbill/funnel/internal/sink"
	"github.com/rzbill/funnel/internal/submitter"
	"github.com/rzbill/funnel/pkg/backoff"
	"github.com/rzbill/funnel/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
	// Registry receives the pipeline's collectors. Nil uses a fresh registry.
	Registry *prometheus.Registry
}

// Runtime wires the sink, journal, metrics, and pipeline for a single-node
// instance.
type Runtime struct {
	config   cfgpkg.Config
	sink     sink.Sink
	journal  *journal.Journal
	registry *prometheus.Registry
	pipe     *pipeline.Pipeline

	closeOnce sync.Once
	closeErr  error
}

// Open validates the configuration and assembles the pipeline. The pipeline
// is not running yet; call Run.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	snk, err := openSink(cfg.Sink)
	if err != nil {
		return nil, err
	}

	var jrnl *journal.Journal
	if cfg.Journal {
		jrnl, err = journal.Open(cfg.DataDir, logger)
		if err != nil {
			_ = snk.Close()
			return nil, err
		}
	}

	flt, err := filter.New(cfg.FilterExpr)
	if err != nil {
		_ = snk.Close()
		_ = jrnl.Close()
		return nil, fmt.Errorf("runtime: filter: %w", err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	mtr := metrics.New(registry)

	pipe := pipeline.New(pipeline.Config{
		QueueCapacity: cfg.Queue.Capacity,
		Batch: batcher.Config{
			MaxSize: cfg.Batch.MaxSize,
			MaxWait: cfg.Batch.MaxWait.Std(),
		},
		Submit: submitter.Config{
			MaxAttempts: cfg.Submit.MaxAttempts,
			Backoff: backoff.Policy{
				Initial: cfg.Submit.BackoffInitial.Std(),
				Max:     cfg.Submit.BackoffMax.Std(),
				Factor:  cfg.Submit.BackoffFactor,
				Jitter:  cfg.Submit.BackoffJitter,
			},
		},
		GraceWindow: cfg.GraceWindow.Std(),
		Filter:      flt,
	}, snk, jrnl, mtr, logger)

	return &Runtime{
		config:   cfg,
		sink:     snk,
		journal:  jrnl,
		registry: registry,
		pipe:     pipe,
	}, nil
}

func openSink(cfg cfgpkg.SinkConfig) (sink.Sink, error) {
	switch cfg.Kind {
	case "http":
		return sink.NewHTTP(cfg.Endpoint, cfg.Timeout.Std()), nil
	case "kafka":
		return sink.NewKafka(strings.Join(cfg.Brokers, ","), cfg.Topic), nil
	case "devnull":
		return sink.NewMock(), nil
	default:
		return nil, fmt.Errorf("runtime: unknown sink kind %q", cfg.Kind)
	}
}

// Run starts the pipeline and blocks until it terminates. Cancelling ctx
// triggers the graceful drain.
func (r *Runtime) Run(ctx context.Context) error {
	return r.pipe.Run(ctx)
}

// Shutdown drains and flushes within the given grace window, then releases
// the sink and journal. Safe to call more than once.
func (r *Runtime) Shutdown(grace time.Duration) error {
	r.pipe.RequestShutdown(grace)
	r.closeOnce.Do(func() {
		r.closeErr = r.sink.Close()
		if jerr := r.journal.Close(); r.closeErr == nil {
			r.closeErr = jerr
		}
	})
	return r.closeErr
}

// CheckHealth reports whether the pipeline can still accept events.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.pipe.State() != pipeline.StateRunning {
		return errors.New("pipeline is shutting down")
	}
	if st := r.pipe.QueueStats(); st.Depth >= st.Capacity {
		return errors.New("queue is full")
	}
	return nil
}

// Pipeline exposes the ingestion gate for servers.
func (r *Runtime) Pipeline() *pipeline.Pipeline { return r.pipe }

// Registry returns the metrics registry for the /metrics endpoint.
func (r *Runtime) Registry() *prometheus.Registry { return r.registry }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
