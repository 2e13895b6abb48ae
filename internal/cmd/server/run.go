package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/funnel/internal/config"
	"github.com/rzbill/funnel/internal/runtime"
	httpserver "github.com/rzbill/funnel/internal/server/http"
	logpkg "github.com/rzbill/funnel/pkg/log"
)

type Options struct {
	// ConfigPath points at an optional JSON config file.
	ConfigPath string
	// HTTPAddr and DataDir override the loaded config when non-empty.
	HTTPAddr string
	DataDir  string
}

// Run loads configuration, starts the pipeline and the HTTP server, and
// blocks until ctx is cancelled or a signal arrives. Shutdown drains the
// pipeline within the configured grace window before returning.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// don't pass a signal-aware context still get clean SIGTERM handling.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cfgpkg.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfgpkg.FromEnv(&cfg)
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	procLogger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		procLogger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: procLogger})
	if err != nil {
		return err
	}

	procLogger.Info("Starting Funnel server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("sink", cfg.Sink.Kind),
		logpkg.Int("queue_capacity", cfg.Queue.Capacity),
		logpkg.Int("batch_max_size", cfg.Batch.MaxSize),
		logpkg.Dur("batch_max_wait", cfg.Batch.MaxWait.Std()),
		logpkg.Dur("grace_window", cfg.GraceWindow.Std()),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = rt.Run(sctx)
	}()

	hsrv := httpserver.New(rt, procLogger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Stop accepting HTTP traffic first, then drain the pipeline.
	hsrv.Close()
	err = rt.Shutdown(cfg.GraceWindow.Std())
	wg.Wait()
	return err
}
