package dispatch

import (
	"bufio"
	"io"

	"github.com/rzbill/relay/internal/broker"
)

// WriteEvent writes one push frame: "data: " + payload + "\n\n".
// The payload is written as-is.
func WriteEvent(w io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	_, err := w.Write(frame)
	return err
}

// EventSink writes push frames to w and flushes through flusher.
type EventSink struct {
	bw      *bufio.Writer
	flusher interface{ Flush() }
}

// NewEventSink buffers frames to w. flusher may be nil.
func NewEventSink(w io.Writer, flusher interface{ Flush() }) *EventSink {
	return &EventSink{bw: bufio.NewWriter(w), flusher: flusher}
}

// Send implements Sink.
func (s *EventSink) Send(msg broker.Message) error {
	return WriteEvent(s.bw, msg.Payload)
}

// Flush implements Sink.
func (s *EventSink) Flush() error {
	if err := s.bw.Flush(); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
