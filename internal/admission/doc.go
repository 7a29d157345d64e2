// Package admission implements the connection cap for streaming clients.
//
// TryAdmit is a lock-free check-and-increment on the active counter; a
// successful call hands back a Ticket which the session owns and releases
// exactly once when it closes.
package admission
