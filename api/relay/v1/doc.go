// Package relayv1 holds the relay.v1 streaming API generated from
// streaming.proto: the StreamRequest and StreamResponse messages and the
// StreamingService gRPC stubs.
//
// Regenerate with:
//
//	protoc -I api --go_out=api --go_opt=paths=source_relative \
//		--go-grpc_out=api --go-grpc_opt=paths=source_relative \
//		api/relay/v1/streaming.proto
package relayv1

//go:generate protoc -I ../.. --go_out=../.. --go_opt=paths=source_relative --go-grpc_out=../.. --go-grpc_opt=paths=source_relative relay/v1/streaming.proto
