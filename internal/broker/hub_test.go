package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/relay/internal/metrics"
	"github.com/stretchr/testify/require"
)

func recvOne(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case m := <-sub.C():
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting on %s", sub.Topic())
	}
	return Message{}
}

func requireEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m := <-sub.C():
		t.Fatalf("unexpected message %q", m.Payload)
	default:
	}
}

func TestPublishReachesCurrentSubscribersOnly(t *testing.T) {
	h := NewHub(Options{})
	ctx := context.Background()

	a, err := h.Subscribe("t")
	require.NoError(t, err)
	b, err := h.Subscribe("t")
	require.NoError(t, err)
	gone, err := h.Subscribe("t")
	require.NoError(t, err)
	h.Unsubscribe(gone)

	require.NoError(t, h.Publish(ctx, "t", Message{Payload: []byte("m1")}))

	require.Equal(t, "m1", string(recvOne(t, a).Payload))
	require.Equal(t, "m1", string(recvOne(t, b).Payload))
	requireEmpty(t, gone)

	late, err := h.Subscribe("t")
	require.NoError(t, err)
	requireEmpty(t, late)
}

func TestTopicsAreIsolated(t *testing.T) {
	h := NewHub(Options{})
	a, _ := h.Subscribe("a")
	b, _ := h.Subscribe("b")
	require.NoError(t, h.Publish(context.Background(), "a", Message{Payload: []byte("x")}))
	recvOne(t, a)
	requireEmpty(t, b)
	// publishing to a topic with no subscribers is fine
	require.NoError(t, h.Publish(context.Background(), "nobody", Message{Payload: []byte("x")}))
}

func TestFullSubscriberDropsNewest(t *testing.T) {
	reg := metrics.New()
	h := NewHub(Options{SubscriberBuffer: 2, Metrics: reg})
	ctx := context.Background()
	slow, _ := h.Subscribe("t")
	fast, _ := h.Subscribe("t")

	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, h.Publish(ctx, "t", Message{Payload: []byte(p)}))
		if p != "3" {
			recvOne(t, fast)
		}
	}
	require.Equal(t, "3", string(recvOne(t, fast).Payload))

	require.Equal(t, "1", string(recvOne(t, slow).Payload))
	require.Equal(t, "2", string(recvOne(t, slow).Payload))
	requireEmpty(t, slow)
	require.Equal(t, int64(1), slow.Dropped())
	require.Equal(t, int64(1), reg.Count("broker.dropped"))

	// later messages still arrive after room frees up
	require.NoError(t, h.Publish(ctx, "t", Message{Payload: []byte("4")}))
	require.Equal(t, "4", string(recvOne(t, slow).Payload))
}

func TestFIFOPerSubscriber(t *testing.T) {
	h := NewHub(Options{SubscriberBuffer: 100})
	sub, _ := h.Subscribe("t")
	for i := 0; i < 100; i++ {
		require.NoError(t, h.Publish(context.Background(), "t", Message{Timestamp: int64(i)}))
	}
	for i := 0; i < 100; i++ {
		require.Equal(t, int64(i), recvOne(t, sub).Timestamp)
	}
}

func TestUnsubscribeIdempotentAndRacesPublish(t *testing.T) {
	h := NewHub(Options{SubscriberBuffer: 4})
	ctx := context.Background()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = h.Publish(ctx, "t", Message{Payload: []byte("x")})
			}
		}
	}()

	for i := 0; i < 200; i++ {
		sub, err := h.Subscribe("t")
		require.NoError(t, err)
		wg.Add(2)
		go func() { defer wg.Done(); h.Unsubscribe(sub) }()
		go func() { defer wg.Done(); h.Unsubscribe(sub) }()
	}
	close(stop)
	wg.Wait()
	require.Equal(t, 0, h.Subscribers("t"))
}

func TestCloseRejectsAndReleases(t *testing.T) {
	h := NewHub(Options{})
	sub, _ := h.Subscribe("t")
	require.NoError(t, h.Close())
	select {
	case <-sub.Done():
	default:
		t.Fatalf("subscription should be done after Close")
	}
	require.ErrorIs(t, h.Publish(context.Background(), "t", Message{}), ErrClosed)
	_, err := h.Subscribe("t")
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, 0, h.TotalSubscribers())
}

func TestSubscribeRacingCloseLeavesNoLiveSubscription(t *testing.T) {
	for round := 0; round < 50; round++ {
		reg := metrics.New()
		h := NewHub(Options{Metrics: reg})
		var wg sync.WaitGroup
		subs := make(chan *Subscription, 64)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 8; j++ {
					if sub, err := h.Subscribe("t"); err == nil {
						subs <- sub
					}
				}
			}()
		}
		require.NoError(t, h.Close())
		wg.Wait()
		close(subs)

		for sub := range subs {
			select {
			case <-sub.Done():
			default:
				t.Fatalf("round %d: subscription %d survived Close", round, sub.ID())
			}
		}
		require.Equal(t, 0, h.TotalSubscribers())
		require.Zero(t, reg.Count(metrics.BrokerSubscribers))
	}
}

func TestUnsubscribeKeepsDeliveryCounts(t *testing.T) {
	h := NewHub(Options{SubscriberBuffer: 1})
	sub, err := h.Subscribe("t")
	require.NoError(t, err)
	require.NoError(t, h.Publish(context.Background(), "t", Message{Payload: []byte("a")}))
	require.NoError(t, h.Publish(context.Background(), "t", Message{Payload: []byte("b")}))
	h.Unsubscribe(sub)
	require.EqualValues(t, 1, sub.Delivered())
	require.EqualValues(t, 1, sub.Dropped())
}
