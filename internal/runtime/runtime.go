package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/relay/internal/admission"
	"github.com/rzbill/relay/internal/backplane"
	"github.com/rzbill/relay/internal/backplane/memory"
	pgbackplane "github.com/rzbill/relay/internal/backplane/postgres"
	redisbackplane "github.com/rzbill/relay/internal/backplane/redis"
	"github.com/rzbill/relay/internal/broker"
	cfgpkg "github.com/rzbill/relay/internal/config"
	"github.com/rzbill/relay/internal/dispatch"
	"github.com/rzbill/relay/internal/ingest"
	"github.com/rzbill/relay/internal/metrics"
	"github.com/rzbill/relay/internal/monitor"
	"github.com/rzbill/relay/internal/session"
	pebblestore "github.com/rzbill/relay/internal/storage/pebble"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Transport overrides the backplane selected by Config.Backplane.Kind.
	// The runtime does not close a transport it did not create.
	Transport backplane.Transport
}

// Runtime wires the admission controller, broker, ingestion pipeline, and
// monitor for a single process. Transport servers hold a *Runtime and use
// its accessors; they never build these components themselves.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Registry

	admission *admission.Controller
	hub       *broker.Hub
	bridge    *broker.Bridge
	broker    broker.Broker
	pipeline  *ingest.Pipeline
	monitor   *monitor.Monitor

	transport     backplane.Transport
	ownsTransport bool
	historyDB     *pebblestore.DB
	history       *monitor.History

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Open validates cfg and builds every component. Nothing runs until Start.
// Failing to open the history store is returned as an error. An unreachable
// backplane is only logged: the bridge keeps reconnecting and local
// delivery works meanwhile.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.Discard()
	}
	rt := &Runtime{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}
	rt.admission = admission.NewController(cfg.MaxConcurrentStreams, &admission.Counters{})
	rt.hub = broker.NewHub(broker.Options{
		SubscriberBuffer: cfg.Dispatch.SubscriberBuffer,
		Logger:           logger,
		Metrics:          rt.metrics,
	})
	rt.broker = rt.hub

	if err := rt.openBackplane(ctx, opts.Transport); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if rt.transport != nil {
		rt.bridge = broker.NewBridge(rt.hub, broker.BridgeOptions{
			Transport:      rt.transport,
			Channel:        cfg.Backplane.Channel,
			DefaultTopic:   cfg.DefaultTopic,
			OutboundBuffer: cfg.Backplane.OutboundBuffer,
			Logger:         logger,
			Metrics:        rt.metrics,
		})
		rt.broker = rt.bridge
	}

	rt.pipeline = ingest.New(rt.broker, ingest.Options{
		Mode:                 ingest.Mode(cfg.Ingest.Mode),
		Topic:                cfg.DefaultTopic,
		Workers:              cfg.Ingest.Workers,
		GlobalBufferCapacity: cfg.Ingest.GlobalBufferCapacity,
		BatchSize:            cfg.Ingest.BatchSize,
		BatchWait:            cfg.Ingest.BatchWait,
		BufferWait:           cfg.Session.BufferWait,
		MaxFaults:            cfg.Ingest.MaxFaults,
		FaultBackoff:         cfg.Ingest.FaultBackoff,
		Logger:               logger,
		Metrics:              rt.metrics,
	})

	if dir := cfg.HistoryDir(); dir != "" {
		db, err := pebblestore.Open(pebblestore.Options{
			Dir:     dir,
			Logger:  logger,
			Metrics: pebblestore.RegistryHook{Registry: rt.metrics},
		})
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.historyDB = db
		h, err := monitor.NewHistory(db, cfg.Monitor.HistoryRetention)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.history = h
	}

	mopts := monitor.Options{
		Interval:    cfg.Monitor.Interval,
		Counters:    rt.admission.Counters(),
		Subscribers: rt.hub.TotalSubscribers,
		Logger:      logger,
		Metrics:     rt.metrics,
	}
	if rt.history != nil {
		mopts.Store = rt.history
	}
	rt.monitor = monitor.New(mopts)
	return rt, nil
}

const backplanePingTimeout = 3 * time.Second

func (r *Runtime) openBackplane(ctx context.Context, override backplane.Transport) error {
	if override != nil {
		r.transport = override
		return nil
	}
	bp := r.config.Backplane
	switch bp.Kind {
	case "", cfgpkg.BackplaneNone:
		return nil
	case cfgpkg.BackplaneMemory:
		r.transport = memory.New(nil)
	case cfgpkg.BackplaneRedis:
		r.transport = redisbackplane.New(redisbackplane.Config{Addr: bp.RedisAddr, Password: bp.RedisPassword, DB: bp.RedisDB})
	case cfgpkg.BackplanePostgres:
		t, err := pgbackplane.New(ctx, pgbackplane.Config{DSN: bp.PostgresDSN})
		if err != nil {
			return fmt.Errorf("runtime: %w", err)
		}
		r.transport = t
	default:
		return fmt.Errorf("runtime: unknown backplane %q", bp.Kind)
	}
	r.ownsTransport = true
	if p, ok := r.transport.(pinger); ok {
		pctx, cancel := context.WithTimeout(ctx, backplanePingTimeout)
		defer cancel()
		if err := p.Ping(pctx); err != nil {
			r.logger.Warn("backplane unreachable, bridge will retry",
				logpkg.Str("backplane", bp.Kind), logpkg.Err(err))
		}
	}
	return nil
}

// Start launches background tasks: global ingestion workers, backplane
// mirroring, and the monitor. They stop on Close or when ctx ends.
func (r *Runtime) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		r.pipeline.Start(ctx)
		if r.bridge != nil {
			r.bridge.Start(ctx)
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			_ = r.monitor.Run(ctx)
		}()
	})
}

// Close stops background tasks and releases resources. It is idempotent.
func (r *Runtime) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
		if r.pipeline != nil {
			r.pipeline.Stop()
		}
		if r.bridge != nil {
			errs = append(errs, r.bridge.Close())
		}
		if r.hub != nil {
			errs = append(errs, r.hub.Close())
		}
		if r.transport != nil && r.ownsTransport {
			errs = append(errs, r.transport.Close())
		}
		if r.historyDB != nil {
			errs = append(errs, r.historyDB.Close())
		}
	})
	return errors.Join(errs...)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// CheckHealth reports whether the broker accepts publishes and the
// configured backplane answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.hub == nil || r.hub.Closed() {
		return errors.New("broker closed")
	}
	if p, ok := r.transport.(pinger); ok {
		pctx, cancel := context.WithTimeout(ctx, backplanePingTimeout)
		defer cancel()
		if err := p.Ping(pctx); err != nil {
			return fmt.Errorf("backplane: %w", err)
		}
	}
	return nil
}

// Stats is the operational snapshot served by /v1/stats.
type Stats struct {
	Streams     admission.Snapshot `json:"streams"`
	Capacity    int                `json:"capacity"`
	Subscribers int                `json:"subscribers"`
	IngestMode  string             `json:"ingestMode"`
	InstanceID  string             `json:"instanceId,omitempty"`
	LastReport  monitor.Report     `json:"lastReport"`
	Metrics     map[string]any     `json:"metrics"`
}

// Stats returns current counters and metrics.
func (r *Runtime) Stats() Stats {
	s := Stats{
		Streams:     r.admission.Counters().Snapshot(),
		Capacity:    r.admission.Capacity(),
		Subscribers: r.hub.TotalSubscribers(),
		IngestMode:  string(r.pipeline.Mode()),
		LastReport:  r.monitor.Last(),
		Metrics:     r.metrics.Snapshot(),
	}
	if r.bridge != nil {
		s.InstanceID = r.bridge.InstanceID()
	}
	return s
}

// SessionOptions derives per-session buffer settings from config.
func (r *Runtime) SessionOptions() session.Options {
	return session.Options{
		BufferCapacity: r.config.Session.BufferCapacity,
		BufferWait:     r.config.Session.BufferWait,
	}
}

// DispatchOptions derives consumer settings for topic; empty selects the
// default topic.
func (r *Runtime) DispatchOptions(topic, filter string) dispatch.Options {
	if topic == "" {
		topic = r.config.DefaultTopic
	}
	return dispatch.Options{
		Topic:       topic,
		FlushWindow: r.config.Dispatch.FlushWindow,
		Filter:      filter,
		Logger:      r.logger,
		Metrics:     r.metrics,
	}
}

func (r *Runtime) Config() cfgpkg.Config            { return r.config }
func (r *Runtime) Logger() logpkg.Logger            { return r.logger }
func (r *Runtime) Metrics() *metrics.Registry       { return r.metrics }
func (r *Runtime) Admission() *admission.Controller { return r.admission }
func (r *Runtime) Broker() broker.Broker            { return r.broker }
func (r *Runtime) Hub() *broker.Hub                 { return r.hub }
func (r *Runtime) Bridge() *broker.Bridge           { return r.bridge }
func (r *Runtime) Pipeline() *ingest.Pipeline       { return r.pipeline }
func (r *Runtime) Monitor() *monitor.Monitor        { return r.monitor }

// History is nil when monitor history is disabled.
func (r *Runtime) History() *monitor.History { return r.history }
