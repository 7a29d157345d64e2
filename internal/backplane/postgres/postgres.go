// Package postgres is a backplane over Postgres NOTIFY/LISTEN. It stores
// nothing; a listener that is disconnected misses notifications.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rzbill/relay/internal/backplane"
)

// MaxPayloadBytes is below Postgres' 8000 byte NOTIFY payload limit.
const MaxPayloadBytes = 7900

// ErrPayloadTooLarge is returned by Publish for payloads over MaxPayloadBytes.
var ErrPayloadTooLarge = errors.New("postgres backplane: payload exceeds NOTIFY limit")

// Config for the Postgres transport.
type Config struct {
	DSN string
	// Buffer is the per-subscription channel size. Defaults to 1024.
	Buffer int
}

// Transport sends with pg_notify over a pool and listens on a dedicated
// connection per subscription.
type Transport struct {
	dsn    string
	pool   *pgxpool.Pool
	buffer int
}

// New connects the publishing pool.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres backplane: DSN is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres backplane: pool: %w", err)
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	return &Transport{dsn: cfg.DSN, pool: pool, buffer: buffer}, nil
}

// Ping verifies connectivity.
func (t *Transport) Ping(ctx context.Context) error {
	return t.pool.Ping(ctx)
}

func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	if _, err := t.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload)); err != nil {
		return fmt.Errorf("postgres notify %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a dedicated connection and issues LISTEN before
// returning.
func (t *Transport) Subscribe(ctx context.Context, channel string) (backplane.Subscription, error) {
	conn, err := pgx.Connect(ctx, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres listen connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("postgres LISTEN %s: %w", channel, err)
	}
	lctx, cancel := context.WithCancel(context.Background())
	s := &subscription{conn: conn, out: make(chan []byte, t.buffer), cancel: cancel, done: make(chan struct{})}
	go s.loop(lctx)
	return s, nil
}

func (t *Transport) Close() error {
	t.pool.Close()
	return nil
}

type subscription struct {
	conn   *pgx.Conn
	out    chan []byte
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *subscription) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	for {
		n, err := s.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.err = err
			}
			return
		}
		select {
		case s.out <- []byte(n.Payload):
		case <-ctx.Done():
			return
		}
	}
}

func (s *subscription) Messages() <-chan []byte { return s.out }
func (s *subscription) Err() error              { return s.err }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.conn.Close(context.Background())
	})
	return err
}
