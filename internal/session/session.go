package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/relay/internal/admission"
	"github.com/rzbill/relay/internal/broker"
)

// ErrClosed is returned by Offer once input is closed or the session ended.
var ErrClosed = errors.New("session: closed")

// ErrInvalidTransition is returned when a lifecycle call does not apply to
// the current state.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// State is the lifecycle phase of a session.
type State int32

const (
	StateAdmitted State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAdmitted:
		return "admitted"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome records how a closed session ended.
type Outcome int32

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeErrored
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCompleted:
		return "completed"
	case OutcomeErrored:
		return "errored"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int32(o))
	}
}

// Options bound the inbound buffer.
type Options struct {
	// BufferCapacity is the inbound FIFO size.
	BufferCapacity int
	// BufferWait is how long Offer waits for room before dropping.
	BufferWait time.Duration
}

// Session is the per-connection state owned by a transport handler.
//
// The handler feeds Offer from its receive loop; an ingestion task drains
// Inbound. The admission ticket is released exactly once, from Close.
type Session struct {
	ticket  *admission.Ticket
	opts    Options
	created time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	state   atomic.Int32
	outcome atomic.Int32

	// inMu guards closing inbound against concurrent Offer.
	inMu        sync.RWMutex
	inbound     chan broker.Message
	inputClosed bool

	processed atomic.Int64
	dropped   atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a session in StateAdmitted owning ticket. The session's
// context is derived from parent.
func New(parent context.Context, ticket *admission.Ticket, opts Options) *Session {
	if opts.BufferCapacity <= 0 {
		opts.BufferCapacity = 1
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Session{
		ticket:  ticket,
		opts:    opts,
		created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		inbound: make(chan broker.Message, opts.BufferCapacity),
		done:    make(chan struct{}),
	}
}

// ID is the stream id assigned at admission.
func (s *Session) ID() int64 { return s.ticket.ID() }

// Context is cancelled when the session closes or its parent is done.
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) State() State     { return State(s.state.Load()) }
func (s *Session) Outcome() Outcome { return Outcome(s.outcome.Load()) }
func (s *Session) Processed() int64 { return s.processed.Load() }
func (s *Session) Dropped() int64   { return s.dropped.Load() }
func (s *Session) Age() time.Duration {
	return time.Since(s.created)
}

// Done is closed after Close.
func (s *Session) Done() <-chan struct{} { return s.done }

// Inbound is drained by the ingestion task. It is closed by CloseInput.
func (s *Session) Inbound() <-chan broker.Message { return s.inbound }

// MarkProcessed counts one message handed off by ingestion.
func (s *Session) MarkProcessed() { s.processed.Add(1) }

// Activate moves Admitted to Active.
func (s *Session) Activate() error {
	if !s.state.CompareAndSwap(int32(StateAdmitted), int32(StateActive)) {
		return fmt.Errorf("%w: activate from %s", ErrInvalidTransition, s.State())
	}
	return nil
}

// Offer enqueues msg. When the buffer is full it waits up to BufferWait and
// then drops the message, returning false. Drops are counted, not errors.
// Offer returns ErrClosed after CloseInput or Close, and ctx.Err() if ctx
// ends while waiting.
func (s *Session) Offer(ctx context.Context, msg broker.Message) (bool, error) {
	s.inMu.RLock()
	defer s.inMu.RUnlock()
	if s.inputClosed || s.State() == StateClosed {
		return false, ErrClosed
	}

	select {
	case s.inbound <- msg:
		return true, nil
	default:
	}
	if s.opts.BufferWait <= 0 {
		s.dropped.Add(1)
		return false, nil
	}

	timer := time.NewTimer(s.opts.BufferWait)
	defer timer.Stop()
	select {
	case s.inbound <- msg:
		return true, nil
	case <-timer.C:
		s.dropped.Add(1)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.done:
		return false, ErrClosed
	}
}

// CloseInput records the peer's half-close: Active moves to Draining and
// the inbound buffer is closed so ingestion drains what is left and stops.
func (s *Session) CloseInput() error {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateDraining)) {
		return fmt.Errorf("%w: close input from %s", ErrInvalidTransition, s.State())
	}
	s.inMu.Lock()
	defer s.inMu.Unlock()
	if !s.inputClosed {
		s.inputClosed = true
		close(s.inbound)
	}
	return nil
}

// Close moves the session to Closed with outcome, cancels its context with
// cause, and releases the admission slot. Only the first call has any
// effect; it reports whether this call closed the session.
func (s *Session) Close(outcome Outcome, cause error) bool {
	closed := false
	s.closeOnce.Do(func() {
		closed = true
		s.outcome.Store(int32(outcome))
		s.state.Store(int32(StateClosed))
		if cause == nil {
			cause = fmt.Errorf("session %d %s", s.ID(), outcome)
		}
		s.cancel(cause)
		close(s.done)
		s.ticket.Release()
	})
	return closed
}

// Cause returns why the session context ended, if it has.
func (s *Session) Cause() error { return context.Cause(s.ctx) }
