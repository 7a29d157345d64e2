// Package id provides a 128-bit, lexicographically sortable identifier.
//
// # Format
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// Byte-wise comparison preserves chronological order, and IDs issued for
// the same millisecond stay strictly increasing by sequence. This makes
// them suitable as ordered storage keys.
//
// # Monotonicity
//
// A Generator never goes backwards:
//   - A timestamp older than the last issued one is pinned to the last
//     millisecond with the next sequence.
//   - Observe seeds the generator from a persisted ID after a restart.
//
// Usage
//
//	g := id.NewGenerator()
//	k := g.At(report.Time)
//	b := k.Bytes()   // 16-byte representation
//	s := k.String()  // hex string
package id
