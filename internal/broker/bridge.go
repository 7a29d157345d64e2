package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rzbill/relay/internal/backplane"
	"github.com/rzbill/relay/internal/metrics"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Transport backplane.Transport
	// Channel is the backplane channel (or pattern) to mirror on.
	Channel string
	// DefaultTopic receives backplane payloads that are not relay envelopes.
	DefaultTopic   string
	OutboundBuffer int
	// InstanceID tags outbound envelopes. Generated when empty.
	InstanceID string
	// MaxReconnectInterval caps the reconnect backoff. Defaults to 30s.
	MaxReconnectInterval time.Duration
	Logger               logpkg.Logger
	Metrics              *metrics.Registry
}

// Bridge is a Broker that delivers locally through a Hub and mirrors every
// local publish to a backplane. Messages arriving from the backplane that
// originated on another instance are published into the local Hub.
//
// The backplane is off the hot path: outbound messages go through a bounded
// queue drained by a background task, and a full queue drops.
type Bridge struct {
	local    *Hub
	tr       backplane.Transport
	opts     BridgeOptions
	origin   string
	logger   logpkg.Logger
	outbound chan envelope

	sent     gometrics.Counter
	received gometrics.Counter
	dropped  gometrics.Counter
	errs     gometrics.Counter

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	ready     chan struct{}
}

// envelope is the backplane wire format.
type envelope struct {
	Origin    string `json:"origin"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"ts"`
}

// NewBridge wraps local. Call Start to begin mirroring.
func NewBridge(local *Hub, opts BridgeOptions) *Bridge {
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = 100000
	}
	if opts.Channel == "" {
		opts.Channel = "realtime-messages"
	}
	if opts.DefaultTopic == "" {
		opts.DefaultTopic = opts.Channel
	}
	if opts.MaxReconnectInterval <= 0 {
		opts.MaxReconnectInterval = 30 * time.Second
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.Discard()
	}
	return &Bridge{
		local:    local,
		tr:       opts.Transport,
		opts:     opts,
		origin:   opts.InstanceID,
		logger:   logger.With(logpkg.Component("bridge"), logpkg.Str("instance", opts.InstanceID)),
		outbound: make(chan envelope, opts.OutboundBuffer),
		ready:    make(chan struct{}),
		sent:     opts.Metrics.Counter(metrics.BackplaneSent),
		received: opts.Metrics.Counter(metrics.BackplaneReceived),
		dropped:  opts.Metrics.Counter(metrics.BackplaneDropped),
		errs:     opts.Metrics.Counter(metrics.BackplaneErrors),
	}
}

// InstanceID identifies this process on the backplane.
func (b *Bridge) InstanceID() string { return b.origin }

// Local returns the wrapped hub.
func (b *Bridge) Local() *Hub { return b.local }

// Ready is closed after the first successful backplane subscription.
func (b *Bridge) Ready() <-chan struct{} { return b.ready }

// Start launches the outbound publisher and the inbound subscriber. Both
// stop when ctx is done or Close is called.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		b.wg.Add(2)
		go b.publishLoop(ctx)
		go b.subscribeLoop(ctx)
	})
}

// Close stops the background tasks. The transport is owned by the caller.
func (b *Bridge) Close() error {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		b.wg.Wait()
	})
	return nil
}

// Publish delivers locally and queues the message for the backplane.
func (b *Bridge) Publish(ctx context.Context, topic string, msg Message) error {
	if err := b.local.Publish(ctx, topic, msg); err != nil {
		return err
	}
	env := envelope{Origin: b.origin, Topic: topic, Payload: msg.Payload, Timestamp: msg.Timestamp}
	select {
	case b.outbound <- env:
	default:
		b.dropped.Inc(1)
	}
	return nil
}

func (b *Bridge) Subscribe(topic string) (*Subscription, error) { return b.local.Subscribe(topic) }
func (b *Bridge) Unsubscribe(sub *Subscription)                 { b.local.Unsubscribe(sub) }

func (b *Bridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.outbound:
			data, err := json.Marshal(env)
			if err != nil {
				b.errs.Inc(1)
				continue
			}
			if err := b.tr.Publish(ctx, b.opts.Channel, data); err != nil {
				if ctx.Err() != nil {
					return
				}
				b.errs.Inc(1)
				b.logger.Warn("backplane publish failed", logpkg.Err(err))
				continue
			}
			b.sent.Inc(1)
		}
	}
}

// subscribeLoop keeps one backplane subscription alive, reconnecting with
// exponential backoff. The backoff resets after a connection delivered
// traffic or stayed up.
func (b *Bridge) subscribeLoop(ctx context.Context) {
	defer b.wg.Done()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = b.opts.MaxReconnectInterval
	bo.MaxElapsedTime = 0
	readyOnce := sync.Once{}

	for {
		sub, err := b.tr.Subscribe(ctx, b.opts.Channel)
		if err == nil {
			readyOnce.Do(func() { close(b.ready) })
			b.logger.Info("backplane subscribed", logpkg.Str("channel", b.opts.Channel))
			bo.Reset()
			err = b.consume(ctx, sub)
			_ = sub.Close()
		}
		if ctx.Err() != nil {
			return
		}
		b.errs.Inc(1)
		wait := bo.NextBackOff()
		b.logger.Warn("backplane subscription lost; reconnecting", logpkg.Err(err), logpkg.Dur("retry_in", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

var errSubscriptionEnded = errors.New("backplane subscription ended")

func (b *Bridge) consume(ctx context.Context, sub backplane.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-sub.Messages():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return errSubscriptionEnded
			}
			b.receive(ctx, data)
		}
	}
}

// receive publishes a backplane payload into the local hub. Payloads that
// are not envelopes are treated as raw messages for the default topic.
func (b *Bridge) receive(ctx context.Context, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Origin == "" {
		env = envelope{Topic: b.opts.DefaultTopic, Payload: data, Timestamp: time.Now().UnixMilli()}
	} else if env.Origin == b.origin {
		return
	}
	if env.Topic == "" {
		env.Topic = b.opts.DefaultTopic
	}
	b.received.Inc(1)
	_ = b.local.Publish(ctx, env.Topic, Message{Payload: env.Payload, Timestamp: env.Timestamp})
}
