// Package filter evaluates an optional CEL expression against incoming
// events at the ingestion gate. Events failing the expression are rejected
// before they reach the queue, so they are never "accepted" in the
// at-least-once sense.
package filter
