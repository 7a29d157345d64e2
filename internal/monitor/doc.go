// Package monitor reports stream counters at a fixed interval.
//
// Each tick reads the admission counters, resets the report window, and
// emits a Report to the log, the metrics registry, and an optional History
// kept in Pebble. The monitor holds no lock shared with the stream hot path.
package monitor
