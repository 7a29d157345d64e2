// Package pebblestore is a small key/value layer over Pebble with a WAL
// sync policy, prefix scans, and a metrics hook.
//
//	db, err := pebblestore.Open(pebblestore.Options{Dir: "./data/history"})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("mon/..."), value)
//	_ = db.Scan([]byte("mon/"), true, func(k, v []byte) bool { return true })
package pebblestore
