// Package httpserver is the HTTP gateway. It accepts plain-text publishes,
// pushes bus messages to SSE and websocket subscribers, and serves health
// and stats endpoints.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
