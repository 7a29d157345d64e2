package broker

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/relay/internal/backplane/memory"
	pgbackplane "github.com/rzbill/relay/internal/backplane/postgres"
	cfgpkg "github.com/rzbill/relay/internal/config"
	"github.com/stretchr/testify/require"
)

func newLinkedBridge(t *testing.T, n *memory.Network) *Bridge {
	t.Helper()
	tr := memory.New(n)
	b := NewBridge(NewHub(Options{}), BridgeOptions{Transport: tr, Channel: "realtime-messages", DefaultTopic: "realtime-messages"})
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = b.Close()
		_ = tr.Close()
	})
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatalf("bridge never subscribed")
	}
	return b
}

func TestBridgeMirrorsBetweenInstances(t *testing.T) {
	n := memory.NewNetwork()
	a := newLinkedBridge(t, n)
	b := newLinkedBridge(t, n)

	subA, _ := a.Subscribe("realtime-messages")
	subB, _ := b.Subscribe("realtime-messages")

	require.NoError(t, a.Publish(context.Background(), "realtime-messages", Message{Payload: []byte("hi"), Timestamp: 42}))

	require.Equal(t, "hi", string(recvOne(t, subA).Payload))
	got := recvOne(t, subB)
	require.Equal(t, "hi", string(got.Payload))
	require.Equal(t, int64(42), got.Timestamp)

	// the origin must not see its own echo
	select {
	case m := <-subA.C():
		t.Fatalf("echo delivered: %q", m.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridgeAcceptsRawPayloads(t *testing.T) {
	n := memory.NewNetwork()
	b := newLinkedBridge(t, n)
	sub, _ := b.Subscribe("realtime-messages")

	raw := memory.New(n)
	defer raw.Close()
	require.NoError(t, raw.Publish(context.Background(), "realtime-messages", []byte("plain text")))
	require.Equal(t, "plain text", string(recvOne(t, sub).Payload))
}

func TestBridgeReconnectsAfterDrop(t *testing.T) {
	n := memory.NewNetwork()
	tr := memory.New(n)
	b := NewBridge(NewHub(Options{}), BridgeOptions{Transport: tr, Channel: "c", DefaultTopic: "c"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Close()
	<-b.Ready()

	sub, _ := b.Subscribe("c")
	tr.Drop()

	sender := memory.New(n)
	defer sender.Close()
	require.Eventually(t, func() bool {
		_ = sender.Publish(ctx, "c", []byte("after"))
		select {
		case m := <-sub.C():
			return string(m.Payload) == "after"
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBridgeLocalPathSurvivesBackplaneOutage(t *testing.T) {
	tr := memory.New(nil)
	b := NewBridge(NewHub(Options{}), BridgeOptions{Transport: tr, OutboundBuffer: 1})
	_ = tr.Close()
	b.Start(context.Background())
	defer b.Close()

	sub, _ := b.Subscribe("realtime-messages")
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(context.Background(), "realtime-messages", Message{Payload: []byte("x")}))
	}
	for i := 0; i < 5; i++ {
		recvOne(t, sub)
	}
}

func TestLargestPostgresMessageFitsNotify(t *testing.T) {
	env := envelope{
		Origin:    uuid.NewString(),
		Topic:     strings.Repeat("t", cfgpkg.MaxEnvelopeTopicBytes),
		Payload:   make([]byte, cfgpkg.PostgresMaxMessageBytes),
		Timestamp: math.MinInt64,
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.LessOrEqual(t, len(data), pgbackplane.MaxPayloadBytes)
}
