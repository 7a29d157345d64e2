package pebblestore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/relay/internal/metrics"
	"github.com/stretchr/testify/require"
)

type testMetrics struct {
	read    int
	commits int
	written int
}

func (m *testMetrics) ObserveRead(_ time.Duration, n int) { m.read += n }
func (m *testMetrics) ObserveCommit(_ time.Duration, n int) {
	m.commits++
	m.written += n
}

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	m := &testMetrics{}
	db, err := Open(Options{Dir: t.TempDir(), Sync: SyncAlways, Metrics: m})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, m
}

func TestSetGetDelete(t *testing.T) {
	db, m := newTestDB(t)

	require.NoError(t, db.Set([]byte("k1"), []byte("v1")))
	got, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))
	require.NotZero(t, m.read)
	require.Equal(t, 1, m.commits)
	require.NotZero(t, m.written)
	require.NoError(t, db.Delete([]byte("k1")))
	_, err = db.Get([]byte("k1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApplyIsAtomic(t *testing.T) {
	db, m := newTestDB(t)
	boom := errors.New("boom")
	err := db.Apply(func(b *pebble.Batch) error {
		_ = b.Set([]byte("a"), []byte("1"), nil)
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound, "aborted batch leaked a write")
	require.Equal(t, 0, m.commits)
}

func TestScanPrefixBothDirections(t *testing.T) {
	db, _ := newTestDB(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Set([]byte(fmt.Sprintf("p/%d", i)), []byte{byte(i)}))
	}
	_ = db.Set([]byte("q/0"), []byte("x"))

	var asc, desc []string
	require.NoError(t, db.Scan([]byte("p/"), false, func(k, _ []byte) bool { asc = append(asc, string(k)); return true }))
	require.NoError(t, db.Scan([]byte("p/"), true, func(k, _ []byte) bool { desc = append(desc, string(k)); return len(desc) < 2 }))
	require.Equal(t, []string{"p/0", "p/1", "p/2", "p/3", "p/4"}, asc)
	require.Equal(t, []string{"p/4", "p/3"}, desc)
	n, err := db.Count([]byte("p/"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestDeleteRange(t *testing.T) {
	db, _ := newTestDB(t)
	for _, k := range []string{"a1", "a2", "a3"} {
		_ = db.Set([]byte(k), []byte("v"))
	}
	require.NoError(t, db.DeleteRange([]byte("a1"), []byte("a3")))
	n, _ := db.Count([]byte("a"))
	require.Equal(t, 1, n)
}

func TestPrefixEnd(t *testing.T) {
	cases := map[string][]byte{
		"ab":       []byte("ac"),
		"a\xff":    []byte("b"),
		"\xff\xff": nil,
	}
	for in, want := range cases {
		require.Equal(t, string(want), string(PrefixEnd([]byte(in))), "PrefixEnd(%q)", in)
	}
}

func TestRegistryHook(t *testing.T) {
	reg := metrics.New()
	db, err := Open(Options{Dir: t.TempDir(), Metrics: RegistryHook{Registry: reg}})
	require.NoError(t, err)
	defer db.Close()
	_ = db.Set([]byte("k"), []byte("value"))
	_, _ = db.Get([]byte("k"))
	require.NotZero(t, reg.Count(metrics.StoreWriteBytes))
	require.NotZero(t, reg.Count(metrics.StoreReadBytes))
}
