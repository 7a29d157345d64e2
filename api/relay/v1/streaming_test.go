package relayv1

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

func TestDescriptorMatchesServiceDesc(t *testing.T) {
	fd, err := protoregistry.GlobalFiles.FindFileByPath(StreamingService_ServiceDesc.Metadata.(string))
	require.NoError(t, err)
	require.Equal(t, protoreflect.FullName("relay.v1"), fd.Package())

	svc := fd.Services().ByName("StreamingService")
	require.NotNil(t, svc)
	require.Equal(t, StreamingService_ServiceDesc.ServiceName, string(svc.FullName()))

	m := svc.Methods().ByName("StreamData")
	require.NotNil(t, m)
	require.True(t, m.IsStreamingClient())
	require.True(t, m.IsStreamingServer())
	require.Equal(t, (&StreamRequest{}).ProtoReflect().Descriptor(), m.Input())
	require.Equal(t, (&StreamResponse{}).ProtoReflect().Descriptor(), m.Output())
}

func TestSummaryFrameWireFields(t *testing.T) {
	in := &StreamResponse{StreamId: 9, Final: true, Success: true, Message: "stream completed", TotalMessagesProcessed: 3}
	b, err := proto.Marshal(in)
	require.NoError(t, err)

	var out StreamResponse
	require.NoError(t, proto.Unmarshal(b, &out))
	require.True(t, proto.Equal(in, &out))
	require.Empty(t, out.GetData(), "summary frames carry no payload")

	fields := out.ProtoReflect().Descriptor().Fields()
	require.Equal(t, "totalMessagesProcessed", fields.ByNumber(7).JSONName())
	require.Equal(t, "streamId", fields.ByNumber(1).JSONName())
}
