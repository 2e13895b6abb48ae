// Package pipeline wires the queue, batcher, and submitter into one
// supervised flow and owns the shutdown protocol.
//
// # Flow
//
// Ingestion gate → bounded queue → batcher → single submit worker → sink.
// Producers call Submit and get an immediate accept/reject answer; delivery
// happens asynchronously. Exactly one submit worker consumes the sealed
// batch lane, so at most one submission is in flight and batches reach the
// sink in seal order.
//
// # Shutdown
//
// The coordinator converts a cancellation signal into a time-bounded drain
// instead of an abrupt drop:
//
//	Running → Draining:   queue closed, producers now see ErrClosed
//	Draining → Flushing:  batcher seals its partial batch and folds the
//	                      queue's leftovers into final batches
//	Flushing → Terminated: every sealed batch reaches a terminal outcome,
//	                      or the grace window expires first
//
// Batches still pending at grace expiry are the one sanctioned loss path:
// their event IDs are logged, journaled, and counted — never dropped
// silently. The transition chain is one-directional and runs exactly once
// no matter how many times shutdown is requested.
package pipeline
