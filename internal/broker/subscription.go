package broker

import (
	"sync"
	"sync/atomic"
)

// Subscription is one subscriber's view of a topic. Its channel is never
// closed; Done is closed on Unsubscribe.
type Subscription struct {
	id    uint64
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once

	delivered atomic.Int64
	dropped   atomic.Int64
}

func newSubscription(id uint64, topic string, buffer int) *Subscription {
	return &Subscription{
		id:    id,
		topic: topic,
		ch:    make(chan Message, buffer),
		done:  make(chan struct{}),
	}
}

// C delivers messages published after the subscription was created.
func (s *Subscription) C() <-chan Message { return s.ch }

// Done is closed once the subscription has been removed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) ID() uint64     { return s.id }
func (s *Subscription) Topic() string  { return s.topic }
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Delivered counts messages accepted into the buffer.
func (s *Subscription) Delivered() int64 { return s.delivered.Load() }

// offer is non-blocking. It reports whether msg was buffered.
func (s *Subscription) offer(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- msg:
		s.delivered.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// close marks the subscription done; returns false if it already was.
func (s *Subscription) close() bool {
	closed := false
	s.once.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}
