package monitor

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rzbill/relay/internal/admission"
	"github.com/rzbill/relay/internal/metrics"
	logpkg "github.com/rzbill/relay/pkg/log"
	"github.com/shirou/gopsutil/v3/process"
)

// Report is one periodic snapshot.
type Report struct {
	Time           time.Time `json:"time"`
	Active         int64     `json:"active"`
	TotalCreated   int64     `json:"totalCreated"`
	TotalCompleted int64     `json:"totalCompleted"`
	NewSinceLast   int64     `json:"newSinceLast"`
	RatePerSec     float64   `json:"ratePerSec"`
	Rejected       int64     `json:"rejected"`
	RSSBytes       uint64    `json:"rssBytes"`
	HeapBytes      uint64    `json:"heapBytes"`
	Subscribers    int       `json:"subscribers"`
}

// Store persists reports.
type Store interface {
	Append(r Report) error
}

// Options configures a Monitor.
type Options struct {
	Interval time.Duration
	Counters *admission.Counters
	// Subscribers, if set, reports the current broker subscriber count.
	Subscribers func() int
	Store       Store
	Logger      logpkg.Logger
	Metrics     *metrics.Registry
}

// Monitor reports stream counters on a fixed interval.
type Monitor struct {
	opts   Options
	logger logpkg.Logger
	proc   *process.Process

	mu   sync.Mutex
	last Report
}

// New builds a monitor. It does not start it.
func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Counters == nil {
		opts.Counters = &admission.Counters{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.Discard()
	}
	m := &Monitor{opts: opts, logger: logger.WithComponent("monitor")}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		m.proc = p
	}
	return m
}

// Interval is the configured reporting interval.
func (m *Monitor) Interval() time.Duration { return m.opts.Interval }

// Run reports every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			m.Tick(now)
		}
	}
}

// Tick takes one report at now. The rate is computed over the configured
// interval, matching what a ticker-driven Run observes.
func (m *Monitor) Tick(now time.Time) Report {
	c := m.opts.Counters
	r := Report{
		Time:           now,
		Active:         c.Active(),
		TotalCreated:   c.TotalCreated(),
		TotalCompleted: c.TotalCompleted(),
		NewSinceLast:   c.ResetWindow(),
		Rejected:       c.Rejected(),
	}
	r.RatePerSec = float64(r.NewSinceLast) / m.opts.Interval.Seconds()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.HeapBytes = ms.HeapAlloc
	if m.proc != nil {
		if mi, err := m.proc.MemoryInfo(); err == nil {
			r.RSSBytes = mi.RSS
		}
	}
	if m.opts.Subscribers != nil {
		r.Subscribers = m.opts.Subscribers()
	}

	m.mu.Lock()
	m.last = r
	m.mu.Unlock()

	m.opts.Metrics.Gauge(metrics.MonitorActive, r.Active)
	m.opts.Metrics.GaugeFloat(metrics.MonitorStreamRate, r.RatePerSec)
	m.opts.Metrics.Gauge(metrics.MonitorRSSBytes, int64(r.RSSBytes))

	m.logger.Info("stream report",
		logpkg.Int64("active", r.Active),
		logpkg.Int64("created", r.TotalCreated),
		logpkg.Int64("completed", r.TotalCompleted),
		logpkg.Int64("new", r.NewSinceLast),
		logpkg.Float64("rate_per_sec", r.RatePerSec),
		logpkg.Uint64("rss_mb", r.RSSBytes>>20),
		logpkg.Uint64("heap_mb", r.HeapBytes>>20),
		logpkg.Int("subscribers", r.Subscribers),
	)

	if m.opts.Store != nil {
		if err := m.opts.Store.Append(r); err != nil {
			m.logger.Warn("history append failed", logpkg.Err(err))
		}
	}
	return r
}

// Last returns the most recent report, or the zero Report before the first.
func (m *Monitor) Last() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
