package broker

import (
	"context"
	"sync"
	"sync/atomic"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rzbill/relay/internal/metrics"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// DefaultSubscriberBuffer is used when Options.SubscriberBuffer is zero.
const DefaultSubscriberBuffer = 1024

// Options configures a Hub.
type Options struct {
	SubscriberBuffer int
	Logger           logpkg.Logger
	Metrics          *metrics.Registry
}

// Hub is the in-process Broker.
//
// Each topic keeps its subscriber list as an immutable slice behind an
// atomic pointer. Publish loads the current slice and delivers without
// taking any lock; Subscribe and Unsubscribe copy the slice under the
// topic's writer mutex.
type Hub struct {
	opts   Options
	logger logpkg.Logger

	published   gometrics.Counter
	delivered   gometrics.Counter
	dropped     gometrics.Counter
	subscribers gometrics.Counter

	mu     sync.RWMutex
	topics map[string]*topic
	closed atomic.Bool
	nextID atomic.Uint64
}

type topic struct {
	name string
	mu   sync.Mutex
	subs atomic.Pointer[[]*Subscription]
}

// NewHub returns an empty hub.
func NewHub(opts Options) *Hub {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.Discard()
	}
	return &Hub{
		opts:        opts,
		logger:      logger.With(logpkg.Component("broker")),
		published:   opts.Metrics.Counter(metrics.BrokerPublished),
		delivered:   opts.Metrics.Counter(metrics.BrokerDelivered),
		dropped:     opts.Metrics.Counter(metrics.BrokerDropped),
		subscribers: opts.Metrics.Counter(metrics.BrokerSubscribers),
		topics:      make(map[string]*topic),
	}
}

// Publish delivers msg to every subscriber of topicName registered at the
// time of the call. It never blocks.
func (h *Hub) Publish(_ context.Context, topicName string, msg Message) error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.published.Inc(1)
	t := h.lookup(topicName)
	if t == nil {
		return nil
	}
	subs := t.subs.Load()
	if subs == nil {
		return nil
	}
	var delivered, dropped int64
	for _, s := range *subs {
		if s.offer(msg) {
			delivered++
		} else {
			dropped++
		}
	}
	h.delivered.Inc(delivered)
	if dropped > 0 {
		h.dropped.Inc(dropped)
	}
	return nil
}

// Subscribe registers a subscriber that receives messages published from
// now on. There is no replay.
func (h *Hub) Subscribe(topicName string) (*Subscription, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	t := h.topicFor(topicName)
	sub := newSubscription(h.nextID.Add(1), topicName, h.opts.SubscriberBuffer)

	t.mu.Lock()
	var cur []*Subscription
	if p := t.subs.Load(); p != nil {
		cur = *p
	}
	next := make([]*Subscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, sub)
	t.subs.Store(&next)
	t.mu.Unlock()
	h.subscribers.Inc(1)

	// Close may have snapshotted the topic before the store above.
	if h.closed.Load() {
		h.Unsubscribe(sub)
		return nil, ErrClosed
	}
	h.logger.Debug("subscriber added", logpkg.Str("topic", topicName), logpkg.Uint64("sub_id", sub.id), logpkg.Int("subscribers", len(next)))
	return sub, nil
}

// Unsubscribe removes sub. Calling it more than once is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.close() {
		return
	}
	h.subscribers.Dec(1)
	t := h.lookup(sub.topic)
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.subs.Load()
	if p == nil {
		return
	}
	cur := *p
	next := make([]*Subscription, 0, len(cur))
	for _, s := range cur {
		if s != sub {
			next = append(next, s)
		}
	}
	t.subs.Store(&next)
	h.logger.Debug("subscriber removed", logpkg.Str("topic", sub.topic), logpkg.Uint64("sub_id", sub.id),
		logpkg.Int64("delivered", sub.Delivered()), logpkg.Int64("dropped", sub.Dropped()))
}

// Subscribers returns the current subscriber count for a topic.
func (h *Hub) Subscribers(topicName string) int {
	t := h.lookup(topicName)
	if t == nil {
		return 0
	}
	if p := t.subs.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// TotalSubscribers sums subscribers across topics.
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, t := range h.topics {
		if p := t.subs.Load(); p != nil {
			n += len(*p)
		}
	}
	return n
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool { return h.closed.Load() }

// Close rejects further publishes and removes every subscriber.
func (h *Hub) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	h.mu.RLock()
	var all []*Subscription
	for _, t := range h.topics {
		if p := t.subs.Load(); p != nil {
			all = append(all, *p...)
		}
	}
	h.mu.RUnlock()
	for _, s := range all {
		h.Unsubscribe(s)
	}
	return nil
}

func (h *Hub) lookup(name string) *topic {
	h.mu.RLock()
	t := h.topics[name]
	h.mu.RUnlock()
	return t
}

func (h *Hub) topicFor(name string) *topic {
	if t := h.lookup(name); t != nil {
		return t
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[name]; ok {
		return t
	}
	t := &topic{name: name}
	h.topics[name] = t
	return t
}
