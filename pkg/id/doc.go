// Package id generates Funnel's event identifiers.
//
// # Format
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence],
// rendered as a 32-char hex string. Byte-wise comparison preserves
// acceptance order, which lost-event reports and journal keys rely on.
//
// # Monotonicity
//
// The Generator is safe for concurrent producers and per-process monotonic:
//   - A regressing wall clock pins to the last seen millisecond and keeps
//     incrementing the sequence.
//   - A sequence overflow inside one millisecond waits for the next
//     millisecond before emitting.
//
// Usage
//
//	g := id.NewGenerator()
//	eventID := g.Next()
//	s := eventID.String()        // "0000019..." hex
//	back, ok := id.Parse(s)      // round-trips
//	_ = back.Time()              // acceptance wall-clock time
//	_ = ok
package id
