// Package log provides Funnel's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Entries flow through a pluggable
// Formatter (text or JSON) to one or more Outputs. A slog.Handler bridge is
// available for libraries that speak log/slog, and RedirectStdLog routes
// stdlib log output (e.g. Pebble's) through the facade.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("batcher"))
//	l.Info("batch sealed", log.Int("events", 12))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level and
// format strings, typically sourced from FUNNEL_LOG_LEVEL/FUNNEL_LOG_FORMAT).
package log
