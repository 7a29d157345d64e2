package monitor

import (
	"encoding/json"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/relay/internal/storage/pebble"
	"github.com/rzbill/relay/pkg/id"
)

var historyPrefix = []byte("mon/")

// History keeps the most recent reports in a Pebble store, keyed by a
// sortable id derived from report time so scans come back in time order.
type History struct {
	db        *pebblestore.DB
	retention int
	ids       *id.Generator

	mu    sync.Mutex
	count int
}

// NewHistory wraps db. retention bounds how many reports are kept; zero
// keeps everything.
func NewHistory(db *pebblestore.DB, retention int) (*History, error) {
	n, err := db.Count(historyPrefix)
	if err != nil {
		return nil, fmt.Errorf("monitor: count history: %w", err)
	}
	ids := id.NewGenerator()
	err = db.Scan(historyPrefix, true, func(k, _ []byte) bool {
		if last, err := id.FromBytes(k[len(historyPrefix):]); err == nil {
			ids.Observe(last)
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: resume history: %w", err)
	}
	return &History{db: db, retention: retention, ids: ids, count: n}, nil
}

func (h *History) nextKey(r Report) []byte {
	k := make([]byte, 0, len(historyPrefix)+id.Size)
	k = append(k, historyPrefix...)
	return append(k, h.ids.At(r.Time).Bytes()...)
}

// Append stores r and trims the oldest reports beyond retention.
func (h *History) Append(r Report) error {
	v, err := json.Marshal(r)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.db.Set(h.nextKey(r), v); err != nil {
		return err
	}
	h.count++
	if h.retention > 0 && h.count > h.retention {
		return h.trim(h.count - h.retention)
	}
	return nil
}

// trim deletes the n oldest reports. Caller holds mu.
func (h *History) trim(n int) error {
	var end []byte
	seen := 0
	err := h.db.Scan(historyPrefix, false, func(k, _ []byte) bool {
		seen++
		if seen > n {
			end = append([]byte(nil), k...)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if end == nil {
		end = pebblestore.PrefixEnd(historyPrefix)
	}
	if err := h.db.DeleteRange(historyPrefix, end); err != nil {
		return err
	}
	h.count -= n
	return nil
}

// Recent returns up to n reports, newest first. n <= 0 returns all.
func (h *History) Recent(n int) ([]Report, error) {
	var out []Report
	var decodeErr error
	err := h.db.Scan(historyPrefix, true, func(_, v []byte) bool {
		var r Report
		if err := json.Unmarshal(v, &r); err != nil {
			decodeErr = err
			return false
		}
		out = append(out, r)
		return n <= 0 || len(out) < n
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

// Len is the number of stored reports.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
