package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned by Publish and Subscribe after the broker is closed.
var ErrClosed = errors.New("broker: closed")

// Message is an immutable unit of payload on the bus. It is shared
// read-only by every subscriber that receives it.
type Message struct {
	Payload []byte
	// Timestamp is Unix milliseconds.
	Timestamp int64
}

// Broker is the publish/subscribe surface used by ingestion and fan-out.
//
// Delivery is at-most-once and best effort. For a single sequential
// publisher each subscriber sees messages in publish order. A subscriber
// whose buffer is full loses the newest message; other subscribers are
// unaffected. Publish never waits on subscribers.
type Broker interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(topic string) (*Subscription, error)
	// Unsubscribe is idempotent and safe to call concurrently with Publish.
	Unsubscribe(sub *Subscription)
}
