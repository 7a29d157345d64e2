// Package metrics wraps a go-metrics registry with the names used across
// relay. A nil *Registry is valid and records nothing.
package metrics

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Metric names.
const (
	StreamsRejected    = "streams.rejected"
	SessionDropped     = "session.dropped"
	IngestProcessed    = "ingest.processed"
	IngestFaults       = "ingest.faults"
	IngestGlobalDrops  = "ingest.global.dropped"
	IngestBatches      = "ingest.batches"
	BrokerPublished    = "broker.published"
	BrokerDelivered    = "broker.delivered"
	BrokerDropped      = "broker.dropped"
	BrokerSubscribers  = "broker.subscribers"
	BackplaneSent      = "backplane.sent"
	BackplaneReceived  = "backplane.received"
	BackplaneDropped   = "backplane.dropped"
	BackplaneErrors    = "backplane.errors"
	DispatchSent       = "dispatch.sent"
	DispatchFiltered   = "dispatch.filtered"
	DispatchActive     = "dispatch.active"
	MonitorStreamRate  = "monitor.stream_rate"
	MonitorActive      = "monitor.active"
	MonitorRSSBytes    = "monitor.rss_bytes"
	StoreWriteBytes    = "store.write.bytes"
	StoreReadBytes     = "store.read.bytes"
	StoreCommitLatency = "store.commit.latency"
)

// Registry is the process metrics registry.
type Registry struct {
	reg gometrics.Registry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{reg: gometrics.NewRegistry()}
}

// Counter returns the named counter, registering it on first use. Hot
// paths hold the returned handle instead of calling Inc. A nil registry
// returns a counter that records nothing.
func (r *Registry) Counter(name string) gometrics.Counter {
	if r == nil {
		return gometrics.NilCounter{}
	}
	return gometrics.GetOrRegisterCounter(name, r.reg)
}

// Inc adds n to the named counter.
func (r *Registry) Inc(name string, n int64) {
	if r == nil {
		return
	}
	gometrics.GetOrRegisterCounter(name, r.reg).Inc(n)
}

// Dec subtracts n from the named counter.
func (r *Registry) Dec(name string, n int64) {
	if r == nil {
		return
	}
	gometrics.GetOrRegisterCounter(name, r.reg).Dec(n)
}

// Count returns the current value of the named counter.
func (r *Registry) Count(name string) int64 {
	if r == nil {
		return 0
	}
	return gometrics.GetOrRegisterCounter(name, r.reg).Count()
}

// Gauge sets the named gauge.
func (r *Registry) Gauge(name string, v int64) {
	if r == nil {
		return
	}
	gometrics.GetOrRegisterGauge(name, r.reg).Update(v)
}

// GaugeFloat sets the named float gauge.
func (r *Registry) GaugeFloat(name string, v float64) {
	if r == nil {
		return
	}
	gometrics.GetOrRegisterGaugeFloat64(name, r.reg).Update(v)
}

// Time records a duration sample on the named timer.
func (r *Registry) Time(name string, d time.Duration) {
	if r == nil {
		return
	}
	gometrics.GetOrRegisterTimer(name, r.reg).Update(d)
}

// Snapshot flattens counters and gauges into a map for JSON endpoints.
func (r *Registry) Snapshot() map[string]any {
	out := map[string]any{}
	if r == nil {
		return out
	}
	r.reg.Each(func(name string, m any) {
		switch v := m.(type) {
		case gometrics.Counter:
			out[name] = v.Count()
		case gometrics.Gauge:
			out[name] = v.Value()
		case gometrics.GaugeFloat64:
			out[name] = v.Value()
		case gometrics.Timer:
			s := v.Snapshot()
			out[name] = map[string]any{
				"count":  s.Count(),
				"meanNs": s.Mean(),
				"p99Ns":  s.Percentile(0.99),
			}
		}
	})
	return out
}
