// Package submitter performs downstream batch delivery with bounded retry.
//
// Submit calls the sink and, for retryable failures, retries with
// exponential backoff up to MaxAttempts. Fatal failures and exhausted
// retries are terminal — the submitter never retries indefinitely, because
// under cancellation an unbounded retry loop would hold events hostage past
// the shutdown grace window. Context expiry aborts both backoff sleeps and
// in-flight attempts.
//
// The pipeline runs exactly one submit worker, so at most one submission is
// in flight per sink and sealed batches are delivered in seal order.
package submitter
