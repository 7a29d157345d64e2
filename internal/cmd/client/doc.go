// Package client provides the relay client commands.
//
// The commands talk to a running relay server: HTTP for publishing,
// SSE subscriptions and stats, gRPC for the bidirectional stream.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. The standalone binary reads RELAY_HTTP
// (default http://127.0.0.1:8080). The gRPC address is read from the
// RELAY_GRPC environment variable (default 127.0.0.1:9090).
//
// Usage
//
//	relay publish --topic alerts 'disk almost full'
//
//	# Tail a topic; the filter is evaluated server-side
//	relay subscribe --topic alerts --filter 'json.level == "error"'
//	relay subscribe --limit 10 --raw
//
//	# Each stdin line is one message; prints fan-out and the final summary
//	printf 'a\nb\n' | relay stream
//
//	relay stats
//	relay stats --history --limit 20
package client
