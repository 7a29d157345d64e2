// Package serverrun exposes the Run entrypoint the CLI uses to start relay
// with its gRPC and HTTP servers, handling lifecycle and shutdown.
//
// Example:
//
//	cfg, _ := serverrun.LoadConfig("relay.yaml")
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
