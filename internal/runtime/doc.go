// Package runtime wires the sink, journal, metrics, and pipeline into a
// single-node Funnel instance. It exposes Open/Run/Shutdown and a basic
// health check for servers.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	go rt.Run(ctx)
//	defer rt.Shutdown(cfg.GraceWindow.Std())
//	_, _ = rt.Pipeline().Submit(ctx, payload, headers)
package runtime
