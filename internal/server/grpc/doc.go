// Package grpcserver hosts the streaming ingress: relay.v1.StreamingService
// and the standard gRPC health service, both backed by a runtime.Runtime.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt)
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
