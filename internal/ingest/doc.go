// Package ingest drains session buffers into the broker.
//
// In session mode each session's task publishes directly. In global mode
// each session's task only forwards into one shared bounded buffer and a
// fixed set of workers publishes in batches. Both modes drop on a full
// buffer rather than push back on the client.
package ingest
