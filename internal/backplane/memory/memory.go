// Package memory is an in-process backplane. Transports created from the
// same Network see each other's publishes, which makes it useful for
// single-node deployments and tests that link several brokers.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/rzbill/relay/internal/backplane"
)

const defaultBuffer = 1024

// Network is a shared in-memory channel namespace.
type Network struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{subs: make(map[string]map[*subscription]struct{})}
}

// Transport is one participant on a Network.
type Transport struct {
	net    *Network
	mu     sync.Mutex
	closed bool
	own    map[*subscription]struct{}
}

// New returns a transport attached to n. A nil n creates a private network.
func New(n *Network) *Transport {
	if n == nil {
		n = NewNetwork()
	}
	return &Transport{net: n, own: make(map[*subscription]struct{})}
}

// Publish copies payload to every subscriber of channel. Full subscribers
// miss the message.
func (t *Transport) Publish(_ context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return backplane.ErrClosed
	}
	t.net.mu.RLock()
	defer t.net.mu.RUnlock()
	for s := range t.net.subs[channel] {
		b := append([]byte(nil), payload...)
		select {
		case s.ch <- b:
		default:
		}
	}
	return nil
}

func (t *Transport) Subscribe(_ context.Context, channel string) (backplane.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, backplane.ErrClosed
	}
	s := &subscription{t: t, channel: channel, ch: make(chan []byte, defaultBuffer)}
	t.net.mu.Lock()
	if t.net.subs[channel] == nil {
		t.net.subs[channel] = make(map[*subscription]struct{})
	}
	t.net.subs[channel][s] = struct{}{}
	t.net.mu.Unlock()
	t.own[s] = struct{}{}
	return s, nil
}

// Close ends every subscription created by this transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := make([]*subscription, 0, len(t.own))
	for s := range t.own {
		subs = append(subs, s)
	}
	t.mu.Unlock()
	for _, s := range subs {
		s.end(backplane.ErrClosed)
	}
	return nil
}

type subscription struct {
	t       *Transport
	channel string
	ch      chan []byte
	once    sync.Once
	err     error
}

func (s *subscription) Messages() <-chan []byte { return s.ch }
func (s *subscription) Err() error              { return s.err }
func (s *subscription) Close() error {
	s.end(nil)
	return nil
}

func (s *subscription) end(err error) {
	s.once.Do(func() {
		s.t.net.mu.Lock()
		delete(s.t.net.subs[s.channel], s)
		if len(s.t.net.subs[s.channel]) == 0 {
			delete(s.t.net.subs, s.channel)
		}
		s.t.net.mu.Unlock()
		s.t.mu.Lock()
		delete(s.t.own, s)
		s.t.mu.Unlock()
		s.err = err
		close(s.ch)
	})
}

// Drop simulates a lost connection on every live subscription of t. The
// transport itself stays usable.
func (t *Transport) Drop() {
	t.mu.Lock()
	subs := make([]*subscription, 0, len(t.own))
	for s := range t.own {
		subs = append(subs, s)
	}
	t.mu.Unlock()
	for _, s := range subs {
		s.end(errDropped)
	}
}

var errDropped = errors.New("memory backplane: connection dropped")
