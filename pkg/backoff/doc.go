// Package backoff implements bounded exponential backoff with jitter for
// retrying downstream submissions.
package backoff
