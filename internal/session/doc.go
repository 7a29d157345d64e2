// Package session holds per-connection stream state.
//
// Lifecycle:
//
//	Admitted -> Active -> Draining -> Closed(Completed)
//	Active | Draining -> Closed(Errored)
//	any -> Closed(Cancelled)
//
// Closed is terminal. Entering it cancels the session context, which stops
// the ingestion task bound to it, and releases the admission slot.
package session
