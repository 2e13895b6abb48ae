// Package queue implements the bounded in-memory FIFO between producers
// (the ingestion gate) and the single batcher consumer.
//
// # Policy
//
// Offer never blocks. A full queue returns ErrFull immediately — saturation
// is an explicit backpressure signal to the producer, not silent buffering.
// A closed queue returns ErrClosed; its buffered contents remain takeable
// and drainable until empty.
//
// # Concurrency
//
// The queue is the only structure in the pipeline mutated by more than one
// goroutine: many producers Offer, one batcher Takes. A mutex serializes
// both sides; Take parks on a notify channel that Offer and Close close to
// wake waiters (the same wake pattern the event log uses for blocking reads).
package queue
