package serverrun

import (
	"context"
	"errors"
	"fmt"
	"net"

	cfgpkg "github.com/rzbill/relay/internal/config"
	"github.com/rzbill/relay/internal/runtime"
	grpcserver "github.com/rzbill/relay/internal/server/grpc"
	httpserver "github.com/rzbill/relay/internal/server/http"
	logpkg "github.com/rzbill/relay/pkg/log"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// GRPCListener and HTTPListener, when set, are served instead of
	// binding Config.GRPCAddr and Config.HTTPAddr.
	GRPCListener net.Listener
	HTTPListener net.Listener
}

// LoadConfig resolves configuration: defaults, then the file at path (if
// any), then RELAY_* environment variables.
func LoadConfig(path string) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled
// or a server fails. Failing to bind or open the history store is returned
// before anything is served. An unreachable backplane is logged and retried
// in the background while the server runs on local delivery.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&cfg.Log)
		if err != nil {
			lvl := logpkg.InfoLevel
			if parsed, e := logpkg.ParseLevel(cfg.Log.Level); e == nil {
				lvl = parsed
			}
			l = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
		}
		logger = l
	}
	// Pebble and grpc log through the standard library.
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("open runtime: %w", err)
	}
	defer rt.Close()

	grpcLis := opts.GRPCListener
	if grpcLis == nil {
		if grpcLis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
		}
	}
	httpLis := opts.HTTPListener
	if httpLis == nil {
		if httpLis, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
			_ = grpcLis.Close()
			return fmt.Errorf("http listen %s: %w", cfg.HTTPAddr, err)
		}
	}

	logger.Info("Starting relay server",
		logpkg.Str("grpc", grpcLis.Addr().String()),
		logpkg.Str("http", httpLis.Addr().String()),
		logpkg.Int("max_streams", cfg.MaxConcurrentStreams),
		logpkg.Str("ingest_mode", cfg.Ingest.Mode),
		logpkg.Int("workers", cfg.Ingest.Workers),
		logpkg.Dur("monitor_interval", cfg.Monitor.Interval),
		logpkg.Str("backplane", cfg.Backplane.Kind),
		logpkg.Str("history_dir", cfg.HistoryDir()),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	g, gctx := errgroup.WithContext(ctx)
	rt.Start(gctx)
	gsrv := grpcserver.New(rt)
	hsrv := httpserver.New(rt, logger)
	g.Go(func() error { return gsrv.Serve(gctx, grpcLis) })
	g.Go(func() error { return hsrv.Serve(gctx, httpLis) })

	err = g.Wait()
	gsrv.Close()
	hsrv.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", logpkg.Err(err))
		return err
	}
	logger.Info("relay server stopped", logpkg.Int64("streams_total", rt.Admission().Counters().TotalCreated()))
	return nil
}
