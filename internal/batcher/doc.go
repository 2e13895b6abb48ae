// Package batcher assembles accepted events into ordered batches.
//
// A single goroutine pulls from the bounded queue and seals a batch when
// either trigger fires: the pending count reaches MaxSize, or the oldest
// pending event's age reaches MaxWait. The dual trigger bounds both burst
// latency (full batches flush immediately) and tail latency (a lone event
// still flushes within MaxWait).
//
// Sealed batches are handed to the submit lane and the batcher keeps going;
// delivery ordering is preserved downstream by the single-in-flight
// submission rule, not here.
//
// On drain the batcher seals whatever it holds, folds the queue's leftovers
// into final batches respecting MaxSize, emits them, and closes its output.
package batcher
