package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rzbill/relay/internal/broker"
	"github.com/rzbill/relay/internal/dispatch"
	"github.com/rzbill/relay/internal/runtime"
	logpkg "github.com/rzbill/relay/pkg/log"
)

const wsWriteWait = 10 * time.Second

// SubscribeController pushes bus messages to SSE and websocket clients.
// Each connection gets its own dispatcher and subscription.
type SubscribeController struct {
	rt       *runtime.Runtime
	logger   logpkg.Logger
	subs     context.Context
	upgrader websocket.Upgrader
}

func NewSubscribeController(rt *runtime.Runtime, logger logpkg.Logger, subs context.Context) *SubscribeController {
	return &SubscribeController{
		rt:     rt,
		logger: logger,
		subs:   subs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (c *SubscribeController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/stream", c.handleSSE).Methods(http.MethodGet)
	r.HandleFunc("/ws", c.handleWS).Methods(http.MethodGet)
}

// connContext ends when either the request or the server's subscriber
// context ends.
func (c *SubscribeController) connContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(c.subs, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// handleSSE streams "data: <payload>\n\n" frames. The subscription is live
// before the response headers are flushed, so a client that has seen the
// headers receives every later publish.
func (c *SubscribeController) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	q := r.URL.Query()
	sink := dispatch.NewEventSink(w, flusher)
	d, err := dispatch.Open(c.rt.Broker(), sink, c.rt.DispatchOptions(q.Get("topic"), q.Get("filter")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer d.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := c.connContext(r)
	defer cancel()
	c.logger.Debug("sse subscriber connected", logpkg.Str("remote", r.RemoteAddr), logpkg.Uint64("sub_id", d.Subscription().ID()))
	_ = d.Run(ctx)
	c.logger.Debug("sse subscriber disconnected", logpkg.Str("remote", r.RemoteAddr), logpkg.Int64("sent", d.Sent()))
}

// wsSink sends each message as one text frame.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) Send(msg broker.Message) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, msg.Payload)
}

func (s wsSink) Flush() error { return nil }

// handleWS is receive-only for the client: inbound data frames are
// discarded, pings keep the connection alive, and a missed pong ends it.
func (c *SubscribeController) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := c.rt.DispatchOptions(q.Get("topic"), q.Get("filter"))
	if _, err := dispatch.NewFilter(opts.Filter); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Debug("ws upgrade failed", logpkg.Err(err))
		return
	}
	defer conn.Close()

	d, err := dispatch.Open(c.rt.Broker(), wsSink{conn: conn}, opts)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()), time.Now().Add(wsWriteWait))
		return
	}
	defer d.Close()

	ctx, cancel := c.connContext(r)
	defer cancel()

	ping := c.rt.Config().Dispatch.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	pongWait := ping * 2
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		t := time.NewTicker(ping)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	c.logger.Debug("ws subscriber connected", logpkg.Str("remote", r.RemoteAddr))
	_ = d.Run(ctx)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
	c.logger.Debug("ws subscriber disconnected", logpkg.Str("remote", r.RemoteAddr), logpkg.Int64("sent", d.Sent()))
}
