// Package backplane defines the cross-instance transport used to mirror
// broker traffic between relay processes.
//
// Implementations live in subpackages: memory (in-process), redis
// (PUBLISH/PSUBSCRIBE) and postgres (NOTIFY/LISTEN).
package backplane

import (
	"context"
	"errors"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("backplane: closed")

// Transport carries opaque payloads on named channels.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe starts receiving payloads for channel. The subscription's
	// Messages channel is closed when the underlying connection ends.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription is a live channel subscription.
type Subscription interface {
	Messages() <-chan []byte
	// Err reports why Messages was closed, if known.
	Err() error
	Close() error
}
