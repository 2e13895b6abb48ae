// Package metrics exposes Funnel's Prometheus collectors. All methods are
// nil-receiver safe so components can run unmetered in tests.
package metrics
