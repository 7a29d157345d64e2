package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rzbill/relay/internal/broker"
	"github.com/rzbill/relay/internal/metrics"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// flushEvery forces a flush after this many unflushed sends, regardless of
// the flush window.
const flushEvery = 64

// Sink is one consumer's transport.
type Sink interface {
	Send(msg broker.Message) error
	Flush() error
}

// Options configures a Dispatcher.
type Options struct {
	Topic string
	// FlushWindow batches sends for up to this long before flushing. Zero
	// flushes after every message.
	FlushWindow time.Duration
	// Filter is an optional CEL expression; messages for which it is false
	// are skipped.
	Filter string

	Logger  logpkg.Logger
	Metrics *metrics.Registry
}

// Dispatcher copies messages from one broker subscription to one sink.
type Dispatcher struct {
	b       broker.Broker
	sub     *broker.Subscription
	sink    Sink
	opts    Options
	filter  Filter
	logger  logpkg.Logger

	active        gometrics.Counter
	sentTotal     gometrics.Counter
	filteredTotal gometrics.Counter

	sent      atomic.Int64
	closeOnce sync.Once
}

// Open subscribes to opts.Topic. The subscription is live on return, so
// anything published afterwards reaches the sink once Run starts.
func Open(b broker.Broker, sink Sink, opts Options) (*Dispatcher, error) {
	if opts.Topic == "" {
		opts.Topic = "realtime-messages"
	}
	filter, err := NewFilter(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("dispatch: filter: %w", err)
	}
	sub, err := b.Subscribe(opts.Topic)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.Discard()
	}
	d := &Dispatcher{
		b:             b,
		sub:           sub,
		sink:          sink,
		opts:          opts,
		filter:        filter,
		logger:        logger.With(logpkg.Component("dispatch"), logpkg.Str("topic", opts.Topic), logpkg.Uint64("sub_id", sub.ID())),
		active:        opts.Metrics.Counter(metrics.DispatchActive),
		sentTotal:     opts.Metrics.Counter(metrics.DispatchSent),
		filteredTotal: opts.Metrics.Counter(metrics.DispatchFiltered),
	}
	d.active.Inc(1)
	if filter.Enabled() {
		d.logger.Debug("dispatcher filtering", logpkg.Str("filter", opts.Filter))
	}
	return d, nil
}

// Subscription exposes the underlying broker subscription.
func (d *Dispatcher) Subscription() *broker.Subscription { return d.sub }

// Sent is the number of messages written to the sink.
func (d *Dispatcher) Sent() int64 { return d.sent.Load() }

// Run writes messages to the sink until ctx ends, the subscription is
// released, or the sink fails. It returns nil on cancellation and the
// sink error otherwise. The subscription is released on return.
func (d *Dispatcher) Run(ctx context.Context) (err error) {
	defer d.Close()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: panic: %v", r)
			d.logger.Error("dispatcher recovered from panic", logpkg.Any("panic", r))
		}
	}()

	filtered := d.filter.Enabled()
	pending := 0
	var timer *time.Timer
	if d.opts.FlushWindow > 0 {
		timer = time.NewTimer(d.opts.FlushWindow)
		defer timer.Stop()
	}
	flush := func() error {
		if pending == 0 {
			return nil
		}
		pending = 0
		return d.sink.Flush()
	}
	tick := func() <-chan time.Time {
		if timer != nil {
			return timer.C
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = flush()
			return nil
		case <-d.sub.Done():
			_ = flush()
			return nil
		case msg := <-d.sub.C():
			if filtered && !d.filter.Match(d.opts.Topic, msg) {
				d.filteredTotal.Inc(1)
				continue
			}
			if err := d.sink.Send(msg); err != nil {
				return d.sinkErr(err)
			}
			d.sent.Add(1)
			d.sentTotal.Inc(1)
			pending++
			if d.opts.FlushWindow == 0 || pending >= flushEvery {
				if err := flush(); err != nil {
					return d.sinkErr(err)
				}
				if timer != nil {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(d.opts.FlushWindow)
				}
			}
		case <-tick():
			if err := flush(); err != nil {
				return d.sinkErr(err)
			}
			timer.Reset(d.opts.FlushWindow)
		}
	}
}

func (d *Dispatcher) sinkErr(err error) error {
	if !errors.Is(err, context.Canceled) {
		d.logger.Debug("consumer transport failed", logpkg.Err(err))
	}
	return err
}

// Close releases the subscription. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.b.Unsubscribe(d.sub)
		d.active.Dec(1)
	})
}
