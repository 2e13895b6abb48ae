// Package sink defines the downstream collaborator interface and its
// implementations: an HTTP endpoint, a Kafka topic, and a scriptable mock
// for tests and dry runs.
//
// A sink call is synchronous: Send returns nil on ack, or an *Error whose
// Retryable flag drives the submitter's retry policy. Errors that are not
// *Error are treated as retryable (transient transport faults).
package sink
