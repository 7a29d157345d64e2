package dispatch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/relay/internal/broker"
	"github.com/rzbill/relay/internal/metrics"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu      sync.Mutex
	got     []string
	flushes int
	failOn  int
}

func (s *recordSink) Send(msg broker.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn > 0 && len(s.got)+1 == s.failOn {
		return errors.New("broken pipe")
	}
	s.got = append(s.got, string(msg.Payload))
	return nil
}

func (s *recordSink) Flush() error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

func (s *recordSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func TestWriteEventFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvent(&buf, []byte("hello")))
	require.Equal(t, "data: hello\n\n", buf.String())
}

func TestEventSinkBuffersUntilFlush(t *testing.T) {
	var buf bytes.Buffer
	s := NewEventSink(&buf, nil)
	require.NoError(t, s.Send(broker.Message{Payload: []byte("a")}))
	require.NoError(t, s.Send(broker.Message{Payload: []byte("b")}))
	require.Zero(t, buf.Len())
	require.NoError(t, s.Flush())
	require.Equal(t, "data: a\n\ndata: b\n\n", buf.String())
}

func TestRunDeliversUntilCancelled(t *testing.T) {
	hub := broker.NewHub(broker.Options{})
	reg := metrics.New()
	sink := &recordSink{}
	d, err := Open(hub, sink, Options{Topic: "t", Metrics: reg})
	require.NoError(t, err)
	require.Equal(t, 1, hub.Subscribers("t"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for _, p := range []string{"m1", "m2", "m3"} {
		require.NoError(t, hub.Publish(ctx, "t", broker.Message{Payload: []byte(p)}))
	}
	require.Eventually(t, func() bool { return len(sink.messages()) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"m1", "m2", "m3"}, sink.messages())

	cancel()
	require.NoError(t, <-done)
	require.Zero(t, hub.Subscribers("t"))
	require.EqualValues(t, 3, d.Sent())
	require.EqualValues(t, 3, reg.Count(metrics.DispatchSent))
	require.Zero(t, reg.Count(metrics.DispatchActive))

	// Close after Run is a no-op.
	d.Close()
	require.Zero(t, reg.Count(metrics.DispatchActive))
}

func TestSinkErrorEndsOnlyThatDispatcher(t *testing.T) {
	hub := broker.NewHub(broker.Options{})
	bad := &recordSink{failOn: 1}
	good := &recordSink{}
	dBad, err := Open(hub, bad, Options{Topic: "t"})
	require.NoError(t, err)
	dGood, err := Open(hub, good, Options{Topic: "t"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	badDone := make(chan error, 1)
	go func() { badDone <- dBad.Run(ctx) }()
	go func() { _ = dGood.Run(ctx) }()

	require.NoError(t, hub.Publish(ctx, "t", broker.Message{Payload: []byte("x")}))
	select {
	case err := <-badDone:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("failing dispatcher did not stop")
	}
	require.NoError(t, hub.Publish(ctx, "t", broker.Message{Payload: []byte("y")}))
	require.Eventually(t, func() bool { return len(good.messages()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, hub.Subscribers("t"))
}

func TestFlushWindowBatches(t *testing.T) {
	hub := broker.NewHub(broker.Options{})
	sink := &recordSink{}
	d, err := Open(hub, sink, Options{Topic: "t", FlushWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(ctx, "t", broker.Message{Payload: []byte("m")}))
	}
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.got) == 5 && sink.flushes >= 1
	}, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	require.Less(t, sink.flushes, 5)
	sink.mu.Unlock()
}

func TestFilterSkipsNonMatching(t *testing.T) {
	hub := broker.NewHub(broker.Options{})
	reg := metrics.New()
	sink := &recordSink{}
	d, err := Open(hub, sink, Options{Topic: "t", Filter: `json != null && json.level == "error"`, Metrics: reg})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	for _, p := range []string{`{"level":"info"}`, `plain`, `{"level":"error"}`} {
		require.NoError(t, hub.Publish(ctx, "t", broker.Message{Payload: []byte(p)}))
	}
	require.Eventually(t, func() bool { return reg.Count(metrics.DispatchFiltered) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(sink.messages()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, `{"level":"error"}`, sink.messages()[0])
}

func TestOpenRejectsBadFilter(t *testing.T) {
	hub := broker.NewHub(broker.Options{})
	_, err := Open(hub, &recordSink{}, Options{Topic: "t", Filter: "text =="})
	require.Error(t, err)
	require.Zero(t, hub.Subscribers("t"))
}

func TestRunEndsWhenBrokerCloses(t *testing.T) {
	hub := broker.NewHub(broker.Options{})
	d, err := Open(hub, &recordSink{}, Options{Topic: "t"})
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	require.NoError(t, hub.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not observe broker close")
	}
}
