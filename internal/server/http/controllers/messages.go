package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rzbill/relay/internal/broker"
	"github.com/rzbill/relay/internal/runtime"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// MessagesController accepts plain-text publishes.
type MessagesController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

func NewMessagesController(rt *runtime.Runtime, logger logpkg.Logger) *MessagesController {
	return &MessagesController{rt: rt, logger: logger}
}

func (c *MessagesController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/messages/publish", c.handlePublish).Methods(http.MethodPost)
}

// handlePublish publishes the raw request body to ?topic= or the default
// topic. Bodies over the configured message limit are rejected with 413.
func (c *MessagesController) handlePublish(w http.ResponseWriter, r *http.Request) {
	limit := int64(c.rt.Config().MaxMessageBytes)
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = c.rt.Config().DefaultTopic
	}
	msg := broker.Message{Payload: body, Timestamp: time.Now().UnixMilli()}
	if err := c.rt.Broker().Publish(r.Context(), topic, msg); err != nil {
		c.logger.Warn("publish failed", logpkg.Str("topic", topic), logpkg.Err(err))
		writeError(w, http.StatusServiceUnavailable, "failed to publish message")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Message published successfully")
}
