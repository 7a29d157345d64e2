package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rzbill/relay/internal/runtime"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GeneralController serves health and stats.
type GeneralController struct {
	rt *runtime.Runtime
}

func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers:
// - /v1/healthz
// - /v1/stats
// - /v1/stats/history
func (c *GeneralController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/healthz", c.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats", c.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats/history", c.handleHistory).Methods(http.MethodGet)
}

// handleHealth mirrors the gRPC health check: 200 {"status":"SERVING"} or
// 503 {"status":"NOT_SERVING"}.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeProtoJSON(w, http.StatusServiceUnavailable, &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING})
		return
	}
	writeProtoJSON(w, http.StatusOK, &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
}

func (c *GeneralController) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.rt.Stats())
}

// handleHistory returns persisted monitor reports, newest first. The
// optional limit query parameter defaults to 60.
func (c *GeneralController) handleHistory(w http.ResponseWriter, r *http.Request) {
	h := c.rt.History()
	if h == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	reports, err := h.Recent(parseLimit(r.URL.Query().Get("limit"), 60))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, map[string]any{"reports": reports})
}
