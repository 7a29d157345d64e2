// Package log is the structured logging facade used across relay.
//
// Components receive a Logger through their constructor and tag it with a
// component name:
//
//	l, _ := log.ApplyConfig(&log.Config{Level: "info", Format: "text"})
//	l = l.With(log.Component("broker"))
//	l.Info("subscriber added", log.Str("topic", "realtime-messages"), log.Int("subscribers", 3))
//
// Entries are produced through a slog.Handler bridge so the formatter and
// output pipeline stays the same whichever front end emitted the record.
// RedirectStdLog routes the standard library logger (used by grpc and
// pebble internals) into the same pipeline.
package log
