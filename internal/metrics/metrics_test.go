package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	r := New()
	r.Inc(BrokerPublished, 3)
	r.Dec(BrokerPublished, 1)
	r.Gauge(MonitorActive, 42)
	r.GaugeFloat(MonitorStreamRate, 1.5)
	r.Time(StoreCommitLatency, time.Millisecond)

	require.EqualValues(t, 2, r.Count(BrokerPublished))
	snap := r.Snapshot()
	require.Equal(t, int64(42), snap[MonitorActive])
	require.Equal(t, 1.5, snap[MonitorStreamRate])
	timer, ok := snap[StoreCommitLatency].(map[string]any)
	require.True(t, ok, "timer missing: %v", snap)
	require.EqualValues(t, 1, timer["count"])
}

func TestCounterHandleSharesRegistration(t *testing.T) {
	r := New()
	c := r.Counter(DispatchSent)
	c.Inc(2)
	r.Inc(DispatchSent, 1)

	require.Same(t, c, r.Counter(DispatchSent), "lookups return the registered handle")
	require.EqualValues(t, 3, c.Count())
	require.EqualValues(t, 3, r.Snapshot()[DispatchSent])
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.Inc(BrokerDropped, 1)
	r.Gauge(MonitorActive, 1)
	c := r.Counter(BrokerDropped)
	c.Inc(5)
	require.Zero(t, c.Count())
	require.Zero(t, r.Count(BrokerDropped))
	require.Empty(t, r.Snapshot())
}
