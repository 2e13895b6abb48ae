// Package event defines the data model flowing through the pipeline: the
// accepted Event, the sealed Batch handed to the submitter, and the terminal
// SubmissionOutcome per batch.
//
// Ownership: the bounded queue owns an Event from acceptance until the
// batcher takes it; the Batch owns it from there. A Batch is sealed once and
// never mutated afterwards — the submitter and shutdown flush only read it.
package event
