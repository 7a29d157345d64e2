package transports

import (
	"context"
	"errors"
	"io"
	"time"

	relayv1 "github.com/rzbill/relay/api/relay/v1"
	"google.golang.org/grpc"
)

// GrpcTransport drives StreamingService.StreamData.
type GrpcTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGrpcTransport constructs a new GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcTransport {
	return &GrpcTransport{dial: dial}
}

// Stream sends every payload from in, half-closes, and waits for the
// closing summary. Fan-out frames received meanwhile go to onData.
func (t *GrpcTransport) Stream(ctx context.Context, in <-chan []byte, onData func(data []byte) error) (Summary, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := relayv1.NewStreamingServiceClient(conn).StreamData(ctx)
	if err != nil {
		return Summary{}, err
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- sendAll(ctx, stream, in)
	}()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Summary{}, errors.New("stream ended without a summary")
			}
			return Summary{}, err
		}
		if resp.GetFinal() {
			return Summary{Success: resp.GetSuccess(), Message: resp.GetMessage(), Processed: resp.GetTotalMessagesProcessed()}, nil
		}
		if onData != nil {
			if err := onData(resp.GetData()); err != nil {
				return Summary{}, err
			}
		}
		select {
		case err := <-sendErr:
			if err != nil {
				return Summary{}, err
			}
		default:
		}
	}
}

func sendAll(ctx context.Context, stream relayv1.StreamingService_StreamDataClient, in <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-in:
			if !ok {
				return stream.CloseSend()
			}
			if err := stream.Send(&relayv1.StreamRequest{Data: data, Timestamp: time.Now().UnixMilli()}); err != nil {
				if errors.Is(err, io.EOF) {
					// The server ended the stream; Recv reports why.
					return nil
				}
				return err
			}
		}
	}
}
