// Package transports provides the network clients used by the relay CLI.
package transports

import (
	"context"
	"encoding/json"
)

// SubscribeRequest describes an SSE subscription.
type SubscribeRequest struct {
	Topic  string
	Filter string
	// Stop after N events (0 = until the context ends).
	Limit int
}

// Summary is the closing frame of a bidirectional stream.
type Summary struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Processed int32  `json:"totalMessagesProcessed"`
}

// RelayTransport abstracts the HTTP surface used by the CLI.
type RelayTransport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, req SubscribeRequest, onEvent func(data []byte) error) error
	Stats(ctx context.Context) (json.RawMessage, error)
	History(ctx context.Context, limit int) (json.RawMessage, error)
}
