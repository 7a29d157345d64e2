// Package redis is a backplane over Redis pub/sub. Subscriptions use
// PSUBSCRIBE so a channel may be a glob pattern.
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rzbill/relay/internal/backplane"
)

// Config contains configuration options for the Redis transport.
type Config struct {
	// Client is the Redis client to use. If nil, one is created from Addr.
	Client   redis.UniversalClient
	Addr     string
	Password string
	DB       int
	// Buffer is the per-subscription channel size. Defaults to 1024.
	Buffer int
}

// Transport publishes with PUBLISH and receives with PSUBSCRIBE.
type Transport struct {
	client redis.UniversalClient
	owned  bool
	buffer int
}

// New creates a Redis-backed transport.
func New(cfg Config) *Transport {
	client := cfg.Client
	owned := false
	if client == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})
		owned = true
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	return &Transport{client: client, owned: owned, buffer: buffer}
}

// Ping verifies connectivity.
func (t *Transport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe waits for the PSUBSCRIBE confirmation before returning so that
// publishes issued afterwards are observed.
func (t *Transport) Subscribe(ctx context.Context, channel string) (backplane.Subscription, error) {
	ps := t.client.PSubscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe %s: %w", channel, err)
	}
	s := &subscription{ps: ps, out: make(chan []byte, t.buffer), quit: make(chan struct{})}
	go s.pump()
	return s, nil
}

// Close closes the client when the transport created it.
func (t *Transport) Close() error {
	if t.owned {
		return t.client.Close()
	}
	return nil
}

type subscription struct {
	ps   *redis.PubSub
	out  chan []byte
	quit chan struct{}
	once sync.Once
	err  error
}

func (s *subscription) pump() {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-s.quit:
			return
		case m, ok := <-in:
			if !ok {
				s.err = backplane.ErrClosed
				return
			}
			select {
			case s.out <- []byte(m.Payload):
			case <-s.quit:
				return
			}
		}
	}
}

func (s *subscription) Messages() <-chan []byte { return s.out }
func (s *subscription) Err() error              { return s.err }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		err = s.ps.Close()
	})
	return err
}
