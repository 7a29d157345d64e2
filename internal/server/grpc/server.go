package grpcserver

import (
	"context"
	"net"

	relayv1 "github.com/rzbill/relay/api/relay/v1"
	"github.com/rzbill/relay/internal/runtime"
	logpkg "github.com/rzbill/relay/pkg/log"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
	grpc   *grpc.Server
	lis    net.Listener

	// shutdown is cancelled before GracefulStop so open streams end.
	shutdown context.CancelFunc
}

// New constructs a gRPC server and registers the streaming and health
// services. The receive size limit comes from the runtime config; opts are
// appended after it.
func New(rt *runtime.Runtime, opts ...grpc.ServerOption) *Server {
	cfg := rt.Config()
	base := []grpc.ServerOption{grpc.MaxRecvMsgSize(cfg.MaxMessageBytes)}
	logger := rt.Logger().WithComponent("grpc")
	shutdownCtx, shutdown := context.WithCancel(context.Background())
	s := &Server{rt: rt, logger: logger, grpc: grpc.NewServer(append(base, opts...)...), shutdown: shutdown}
	relayv1.RegisterStreamingServiceServer(s.grpc, &streamingSvc{rt: rt, logger: logger, shutdown: shutdownCtx})
	healthpb.RegisterHealthServer(s.grpc, &healthSvc{rt: rt})
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close ends open streams, stops the server, and closes the listener.
func (s *Server) Close() {
	s.shutdown()
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
