// Package dispatch fans broker messages out to individual consumers.
//
// Each consumer gets its own Dispatcher: Open subscribes, Run copies
// messages to the consumer's Sink until the consumer goes away, and Close
// releases the subscription. A failing sink ends only its own dispatcher.
package dispatch
