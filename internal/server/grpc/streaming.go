package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	relayv1 "github.com/rzbill/relay/api/relay/v1"
	"github.com/rzbill/relay/internal/broker"
	"github.com/rzbill/relay/internal/dispatch"
	"github.com/rzbill/relay/internal/ingest"
	"github.com/rzbill/relay/internal/metrics"
	"github.com/rzbill/relay/internal/runtime"
	"github.com/rzbill/relay/internal/session"
	logpkg "github.com/rzbill/relay/pkg/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errShuttingDown = errors.New("server shutting down")

type streamingSvc struct {
	relayv1.UnimplementedStreamingServiceServer
	rt       *runtime.Runtime
	logger   logpkg.Logger
	shutdown context.Context
}

// grpcSink writes fan-out frames. Send may be called from the dispatcher
// while the handler sends the final frame, so writes are serialized.
type grpcSink struct {
	mu     sync.Mutex
	stream relayv1.StreamingService_StreamDataServer
	id     int64
}

func (g *grpcSink) Send(msg broker.Message) error {
	return g.send(&relayv1.StreamResponse{StreamId: g.id, Data: msg.Payload, Timestamp: msg.Timestamp})
}

func (g *grpcSink) Flush() error { return nil }

func (g *grpcSink) send(resp *relayv1.StreamResponse) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream.Send(resp)
}

// StreamData admits the stream, feeds client frames into the session
// buffer, optionally fans bus traffic back to the client, and answers the
// client's half-close with one final summary frame.
func (s *streamingSvc) StreamData(stream relayv1.StreamingService_StreamDataServer) (err error) {
	ticket, err := s.rt.Admission().Admit()
	if err != nil {
		s.rt.Metrics().Inc(metrics.StreamsRejected, 1)
		s.logger.Debug("stream rejected", logpkg.Int("capacity", s.rt.Admission().Capacity()))
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	sess := session.New(stream.Context(), ticket, s.rt.SessionOptions())
	logger := s.logger.With(logpkg.Int64("stream_id", sess.ID()))
	stopShutdown := context.AfterFunc(s.shutdown, func() {
		sess.Close(session.OutcomeCancelled, errShuttingDown)
	})
	defer stopShutdown()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("stream handler recovered from panic", logpkg.Any("panic", r))
			sess.Close(session.OutcomeErrored, fmt.Errorf("panic: %v", r))
			err = status.Error(codes.Internal, "internal error")
		}
	}()

	sink := &grpcSink{stream: stream, id: sess.ID()}
	var disp *dispatch.Dispatcher
	if s.rt.Config().Dispatch.StreamFanout {
		disp, err = dispatch.Open(s.rt.Broker(), sink, s.rt.DispatchOptions("", ""))
		if err != nil {
			sess.Close(session.OutcomeErrored, err)
			return status.Error(codes.Unavailable, err.Error())
		}
	}
	if err := sess.Activate(); err != nil {
		if disp != nil {
			disp.Close()
		}
		sess.Close(session.OutcomeErrored, err)
		return status.Error(codes.Internal, err.Error())
	}
	logger.Debug("stream admitted")

	ctx := sess.Context()
	ingestDone := make(chan error, 1)
	go func() { ingestDone <- s.rt.Pipeline().Drain(ctx, sess) }()

	dispCtx, dispCancel := context.WithCancel(ctx)
	dispDone := make(chan struct{})
	if disp != nil {
		go func() {
			defer close(dispDone)
			_ = disp.Run(dispCtx)
		}()
	} else {
		close(dispDone)
	}

	recvDone := make(chan error, 1)
	go func() { recvDone <- s.receive(ctx, stream, sess) }()

	var runErr error
	select {
	case runErr = <-recvDone:
		if runErr == nil {
			// Client half-closed: drain what was accepted before answering.
			_ = sess.CloseInput()
			runErr = <-ingestDone
		}
	case runErr = <-ingestDone:
	}
	dispCancel()
	<-dispDone

	if runErr != nil {
		return s.fail(logger, sess, runErr)
	}

	processed := sess.Processed()
	if err := sink.send(&relayv1.StreamResponse{
		StreamId:               sess.ID(),
		Final:                  true,
		Success:                true,
		Message:                "stream completed",
		TotalMessagesProcessed: int32(processed),
	}); err != nil {
		return s.fail(logger, sess, err)
	}
	sess.Close(session.OutcomeCompleted, nil)
	logger.Debug("stream completed",
		logpkg.Int64("processed", processed),
		logpkg.Int64("dropped", sess.Dropped()),
		logpkg.Dur("age", sess.Age()),
	)
	return nil
}

// receive copies client frames into the session until the client
// half-closes (nil) or the stream fails.
func (s *streamingSvc) receive(ctx context.Context, stream relayv1.StreamingService_StreamDataServer, sess *session.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("receive: panic: %v", r)
		}
	}()
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		ok, err := sess.Offer(ctx, broker.Message{Payload: req.GetData(), Timestamp: req.GetTimestamp()})
		if err != nil {
			return err
		}
		if !ok {
			s.rt.Metrics().Inc(metrics.SessionDropped, 1)
		}
	}
}

// fail closes sess with an outcome matching err and maps err to a status.
func (s *streamingSvc) fail(logger logpkg.Logger, sess *session.Session, err error) error {
	if errors.Is(sess.Cause(), errShuttingDown) {
		sess.Close(session.OutcomeCancelled, errShuttingDown)
		return status.Error(codes.Unavailable, errShuttingDown.Error())
	}
	if isCancel(err) || (sess.Context().Err() != nil && !errors.Is(err, ingest.ErrPersistentFault)) {
		sess.Close(session.OutcomeCancelled, err)
		logger.Debug("stream cancelled", logpkg.Err(err))
		if _, ok := status.FromError(err); ok {
			return err
		}
		return status.FromContextError(err).Err()
	}
	sess.Close(session.OutcomeErrored, err)
	logger.Warn("stream failed", logpkg.Err(err), logpkg.Int64("processed", sess.Processed()))
	if errors.Is(err, ingest.ErrPersistentFault) {
		return status.Error(codes.Internal, err.Error())
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Unknown, err.Error())
}

func isCancel(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Canceled, codes.DeadlineExceeded:
		return true
	}
	return false
}
