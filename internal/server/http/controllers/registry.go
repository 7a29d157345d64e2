package controllers

import (
	"context"

	"github.com/gorilla/mux"
	"github.com/rzbill/relay/internal/runtime"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general   *GeneralController
	messages  *MessagesController
	subscribe *SubscribeController
}

// NewControllerRegistry creates every controller. Push subscriptions end
// when subs is cancelled.
func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger, subs context.Context) *ControllerRegistry {
	return &ControllerRegistry{
		general:   NewGeneralController(rt),
		messages:  NewMessagesController(rt, logger),
		subscribe: NewSubscribeController(rt, logger, subs),
	}
}

// RegisterAllRoutes registers all controller routes with the router.
func (r *ControllerRegistry) RegisterAllRoutes(router *mux.Router) {
	r.general.RegisterRoutes(router)
	r.messages.RegisterRoutes(router)
	r.subscribe.RegisterRoutes(router)
}
