package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/rzbill/relay/internal/admission"
	"github.com/rzbill/relay/internal/metrics"
	pebblestore "github.com/rzbill/relay/internal/storage/pebble"
	"github.com/stretchr/testify/require"
)

type memStore struct{ reports []Report }

func (s *memStore) Append(r Report) error {
	s.reports = append(s.reports, r)
	return nil
}

func TestTickComputesRateAndResetsWindow(t *testing.T) {
	counters := &admission.Counters{}
	ctrl := admission.NewController(100, counters)
	for i := 0; i < 10; i++ {
		tk, ok := ctrl.TryAdmit()
		require.True(t, ok)
		if i < 4 {
			tk.Release()
		}
	}

	store := &memStore{}
	reg := metrics.New()
	m := New(Options{
		Interval:    5 * time.Second,
		Counters:    counters,
		Subscribers: func() int { return 3 },
		Store:       store,
		Metrics:     reg,
	})

	r := m.Tick(time.Now())
	require.EqualValues(t, 6, r.Active)
	require.EqualValues(t, 10, r.TotalCreated)
	require.EqualValues(t, 4, r.TotalCompleted)
	require.EqualValues(t, 10, r.NewSinceLast)
	require.InDelta(t, 2.0, r.RatePerSec, 1e-9)
	require.Equal(t, 3, r.Subscribers)
	require.NotZero(t, r.HeapBytes)
	require.Equal(t, r, m.Last())
	require.Len(t, store.reports, 1)

	r2 := m.Tick(time.Now())
	require.Zero(t, r2.NewSinceLast)
	require.Zero(t, r2.RatePerSec)
	require.EqualValues(t, 6, r2.Active)
}

func TestRunStopsOnCancel(t *testing.T) {
	counters := &admission.Counters{}
	m := New(Options{Interval: 10 * time.Millisecond, Counters: counters})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return !m.Last().Time.IsZero() }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func openHistory(t *testing.T, dir string, retention int) (*History, *pebblestore.DB) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{Dir: dir})
	require.NoError(t, err)
	h, err := NewHistory(db, retention)
	require.NoError(t, err)
	return h, db
}

func TestHistoryRetentionAndOrder(t *testing.T) {
	h, db := openHistory(t, t.TempDir(), 3)
	defer db.Close()

	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(Report{Time: base.Add(time.Duration(i) * time.Second), Active: int64(i)}))
	}
	require.Equal(t, 3, h.Len())

	got, err := h.Recent(0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.EqualValues(t, 4, got[0].Active)
	require.EqualValues(t, 2, got[2].Active)

	two, err := h.Recent(2)
	require.NoError(t, err)
	require.Len(t, two, 2)
}

func TestHistorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	h, db := openHistory(t, dir, 10)
	require.NoError(t, h.Append(Report{Time: time.Unix(1, 0), Active: 7}))
	require.NoError(t, db.Close())

	h2, db2 := openHistory(t, dir, 10)
	defer db2.Close()
	require.Equal(t, 1, h2.Len())
	got, err := h2.Recent(1)
	require.NoError(t, err)
	require.EqualValues(t, 7, got[0].Active)
}

func TestMonitorWritesHistory(t *testing.T) {
	h, db := openHistory(t, t.TempDir(), 0)
	defer db.Close()
	m := New(Options{Interval: time.Second, Store: h})
	m.Tick(time.Now())
	m.Tick(time.Now().Add(time.Second))
	require.Equal(t, 2, h.Len())
}

func TestHistoryKeepsReportsWithEqualTimes(t *testing.T) {
	dir := t.TempDir()
	h, db := openHistory(t, dir, 0)
	at := time.Unix(1700000000, 0)
	require.NoError(t, h.Append(Report{Time: at, Active: 1}))
	require.NoError(t, h.Append(Report{Time: at, Active: 2}))
	require.Equal(t, 2, h.Len())
	require.NoError(t, db.Close())

	// A report stamped earlier than what is stored still sorts last after
	// reopening.
	h2, db2 := openHistory(t, dir, 0)
	defer db2.Close()
	require.NoError(t, h2.Append(Report{Time: at.Add(-time.Hour), Active: 3}))
	got, err := h2.Recent(0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.EqualValues(t, 3, got[0].Active)
	require.EqualValues(t, 2, got[1].Active)
}
