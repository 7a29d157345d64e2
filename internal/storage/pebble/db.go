package pebblestore

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/relay/internal/metrics"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = pebble.ErrNotFound

// SyncMode selects WAL durability for writes.
type SyncMode int

const (
	// SyncInterval lets Pebble coalesce WAL syncs within SyncInterval.
	SyncInterval SyncMode = iota
	// SyncAlways syncs the WAL on every commit.
	SyncAlways
	// SyncNever leaves syncing to Pebble.
	SyncNever
)

// Options configures a store.
type Options struct {
	Dir          string
	Sync         SyncMode
	SyncInterval time.Duration
	// PebbleOptions allows advanced tuning. If nil, defaults are used.
	PebbleOptions *pebble.Options
	Logger        logpkg.Logger
	Metrics       MetricsHook
}

// MetricsHook observes storage operations.
type MetricsHook interface {
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveCommit(elapsed time.Duration, bytes int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRead(time.Duration, int)   {}
func (noopMetrics) ObserveCommit(time.Duration, int) {}

// RegistryHook reports storage observations into a metrics registry.
type RegistryHook struct{ Registry *metrics.Registry }

func (h RegistryHook) ObserveRead(_ time.Duration, n int) {
	h.Registry.Inc(metrics.StoreReadBytes, int64(n))
}

func (h RegistryHook) ObserveCommit(d time.Duration, n int) {
	h.Registry.Inc(metrics.StoreWriteBytes, int64(n))
	h.Registry.Time(metrics.StoreCommitLatency, d)
}

// DB is a small key/value store on top of Pebble.
type DB struct {
	inner   *pebble.DB
	sync    bool
	metrics MetricsHook
}

// Open creates or opens the store in opts.Dir.
func Open(opts Options) (*DB, error) {
	if opts.Dir == "" {
		return nil, errors.New("pebblestore: Options.Dir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.Logger != nil {
		po.Logger = pebbleLogger{opts.Logger.WithComponent("pebble")}
	}
	if opts.Sync == SyncInterval {
		interval := opts.SyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	inner, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", opts.Dir, err)
	}
	hook := opts.Metrics
	if hook == nil {
		hook = noopMetrics{}
	}
	return &DB{inner: inner, sync: opts.Sync == SyncAlways, metrics: hook}, nil
}

// Close closes the database. It is safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

func (db *DB) writeOpts() *pebble.WriteOptions {
	if db.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Apply runs fn against a fresh batch and commits it atomically.
func (db *DB) Apply(fn func(b *pebble.Batch) error) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := fn(b); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	start := time.Now()
	size := b.Len()
	err := b.Commit(db.writeOpts())
	db.metrics.ObserveCommit(time.Since(start), size)
	return err
}

// Set writes one key.
func (db *DB) Set(key, value []byte) error {
	return db.Apply(func(b *pebble.Batch) error { return b.Set(key, value, nil) })
}

// Delete removes one key.
func (db *DB) Delete(key []byte) error {
	return db.Apply(func(b *pebble.Batch) error { return b.Delete(key, nil) })
}

// DeleteRange removes keys in [start, end).
func (db *DB) DeleteRange(start, end []byte) error {
	return db.Apply(func(b *pebble.Batch) error { return b.DeleteRange(start, end, nil) })
}

// Get returns a copy of the value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(out))
	return out, nil
}

// Scan visits keys with prefix in ascending order, or descending when
// reverse is set, until fn returns false. Key and value are only valid
// during the callback.
func (db *DB) Scan(prefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	it, err := db.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()

	start := time.Now()
	read := 0
	valid := it.First()
	next := it.Next
	if reverse {
		valid = it.Last()
		next = it.Prev
	}
	for ; valid; valid = next() {
		v := it.Value()
		read += len(v)
		if !fn(it.Key(), v) {
			break
		}
	}
	db.metrics.ObserveRead(time.Since(start), read)
	return it.Error()
}

// Count returns the number of keys with prefix.
func (db *DB) Count(prefix []byte) (int, error) {
	n := 0
	err := db.Scan(prefix, false, func(_, _ []byte) bool { n++; return true })
	return n, err
}

// PrefixEnd returns the smallest key greater than every key with prefix,
// or nil if there is none.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type pebbleLogger struct{ l logpkg.Logger }

func (p pebbleLogger) Infof(format string, args ...any) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...any) {
	p.l.Error(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...any) {
	p.l.Error(fmt.Sprintf(format, args...))
	panic(fmt.Sprintf(format, args...))
}
