package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rzbill/relay/internal/broker"
	"github.com/rzbill/relay/internal/metrics"
	"github.com/rzbill/relay/internal/session"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// Mode selects how sessions hand messages to the broker.
type Mode string

const (
	// ModeSession publishes from each session's own task.
	ModeSession Mode = "session"
	// ModeGlobal forwards into a shared buffer drained by batch workers.
	ModeGlobal Mode = "global"
)

// ErrPersistentFault ends a session whose ingestion kept failing.
var ErrPersistentFault = errors.New("ingest: persistent fault")

// Options configures a Pipeline.
type Options struct {
	Mode  Mode
	Topic string

	// Global mode.
	Workers              int
	GlobalBufferCapacity int
	BatchSize            int
	BatchWait            time.Duration
	// BufferWait bounds how long forwarding waits on a full global buffer.
	BufferWait time.Duration

	// MaxFaults is the number of consecutive faults tolerated per session.
	MaxFaults    int
	FaultBackoff time.Duration

	Logger  logpkg.Logger
	Metrics *metrics.Registry
}

// Pipeline moves accepted messages from sessions to the broker.
type Pipeline struct {
	broker broker.Broker
	opts   Options
	logger logpkg.Logger

	processed   gometrics.Counter
	faults      gometrics.Counter
	globalDrops gometrics.Counter
	batches     gometrics.Counter

	global chan broker.Message

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a pipeline publishing to b.
func New(b broker.Broker, opts Options) *Pipeline {
	if opts.Mode == "" {
		opts.Mode = ModeSession
	}
	if opts.Topic == "" {
		opts.Topic = "realtime-messages"
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.GlobalBufferCapacity <= 0 {
		opts.GlobalBufferCapacity = 10000
	}
	if opts.MaxFaults <= 0 {
		opts.MaxFaults = 5
	}
	if opts.FaultBackoff <= 0 {
		opts.FaultBackoff = 50 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.Discard()
	}
	p := &Pipeline{
		broker:      b,
		opts:        opts,
		logger:      logger.With(logpkg.Component("ingest"), logpkg.Str("mode", string(opts.Mode))),
		processed:   opts.Metrics.Counter(metrics.IngestProcessed),
		faults:      opts.Metrics.Counter(metrics.IngestFaults),
		globalDrops: opts.Metrics.Counter(metrics.IngestGlobalDrops),
		batches:     opts.Metrics.Counter(metrics.IngestBatches),
	}
	if opts.Mode == ModeGlobal {
		p.global = make(chan broker.Message, opts.GlobalBufferCapacity)
	}
	return p
}

// Mode reports the configured mode.
func (p *Pipeline) Mode() Mode { return p.opts.Mode }

// Start launches the global batch workers. It is a no-op in session mode.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		if p.opts.Mode != ModeGlobal {
			return
		}
		ctx, p.cancel = context.WithCancel(ctx)
		for i := 0; i < p.opts.Workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
		p.logger.Info("batch workers started", logpkg.Int("workers", p.opts.Workers), logpkg.Int("batch_size", p.opts.BatchSize))
	})
}

// Stop halts the batch workers and waits for them.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	})
}

// Drain consumes sess's inbound buffer until it is closed (returns nil),
// ctx ends (returns ctx.Err()), or faults persist (returns an error
// wrapping ErrPersistentFault).
func (p *Pipeline) Drain(ctx context.Context, sess *session.Session) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.opts.FaultBackoff
	bo.MaxInterval = 20 * p.opts.FaultBackoff
	bo.MaxElapsedTime = 0
	faults := 0
	in := sess.Inbound()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			accepted, err := p.handle(ctx, msg)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				faults++
				p.faults.Inc(1)
				p.logger.Warn("ingest fault", logpkg.Int64("stream_id", sess.ID()), logpkg.Int("consecutive", faults), logpkg.Err(err))
				if faults > p.opts.MaxFaults {
					return fmt.Errorf("%w: %d consecutive: %v", ErrPersistentFault, faults, err)
				}
				if !sleep(ctx, bo.NextBackOff()) {
					return ctx.Err()
				}
				continue
			}
			if faults > 0 {
				faults = 0
				bo.Reset()
			}
			if accepted {
				sess.MarkProcessed()
				p.processed.Inc(1)
			}
		}
	}
}

// handle hands one message off. A panic inside the broker is turned into
// an error so it counts as a fault for this session only.
func (p *Pipeline) handle(ctx context.Context, msg broker.Message) (accepted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			accepted, err = false, fmt.Errorf("ingest: panic: %v", r)
		}
	}()
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	if p.opts.Mode == ModeGlobal {
		return p.forward(ctx, msg)
	}
	if err := p.broker.Publish(ctx, p.opts.Topic, msg); err != nil {
		return false, err
	}
	return true, nil
}

// forward places msg on the global buffer, waiting at most BufferWait.
func (p *Pipeline) forward(ctx context.Context, msg broker.Message) (bool, error) {
	select {
	case p.global <- msg:
		return true, nil
	default:
	}
	if p.opts.BufferWait > 0 {
		t := time.NewTimer(p.opts.BufferWait)
		defer t.Stop()
		select {
		case p.global <- msg:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
		}
	}
	p.globalDrops.Inc(1)
	return false, nil
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	batch := make([]broker.Message, 0, p.opts.BatchSize)
	for {
		batch = batch[:0]
		select {
		case <-ctx.Done():
			return
		case m := <-p.global:
			batch = append(batch, m)
		}
		batch = p.fill(ctx, batch)
		p.publishBatch(ctx, id, batch)
	}
}

// fill tops batch up to BatchSize, waiting at most BatchWait for more.
func (p *Pipeline) fill(ctx context.Context, batch []broker.Message) []broker.Message {
	var deadline <-chan time.Time
	if p.opts.BatchWait > 0 {
		t := time.NewTimer(p.opts.BatchWait)
		defer t.Stop()
		deadline = t.C
	}
	for len(batch) < p.opts.BatchSize {
		select {
		case m := <-p.global:
			batch = append(batch, m)
			continue
		default:
		}
		if deadline == nil {
			return batch
		}
		select {
		case m := <-p.global:
			batch = append(batch, m)
		case <-deadline:
			return batch
		case <-ctx.Done():
			return batch
		}
	}
	return batch
}

func (p *Pipeline) publishBatch(ctx context.Context, worker int, batch []broker.Message) {
	defer func() {
		if r := recover(); r != nil {
			p.faults.Inc(1)
			p.logger.Error("batch worker recovered from panic", logpkg.Int("worker", worker), logpkg.Any("panic", r))
		}
	}()
	p.batches.Inc(1)
	for _, m := range batch {
		if err := p.broker.Publish(ctx, p.opts.Topic, m); err != nil {
			p.faults.Inc(1)
			p.logger.Warn("batch publish failed", logpkg.Int("worker", worker), logpkg.Err(err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
