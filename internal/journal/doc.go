// Package journal persists the pipeline's sanctioned loss path: batches
// still pending when the shutdown grace window elapses are recorded here,
// event by event, for external reconciliation.
//
// This is deliberately not a dead-letter redelivery queue — the pipeline
// never reads the journal back into the flow. Keys are
// lost/{batch_id}/{event_id} with a JSON snapshot of the event, committed
// with a synced WAL so a record survives the process exit that follows.
//
// A nil *Journal is valid and disables recording.
package journal
