package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/userdb-provisioner/internal/engine"
	"github.com/Priya8975/userdb-provisioner/internal/store"
)

// BreakerReader reports circuit state for a backend scope.
type BreakerReader interface {
	GetState(ctx context.Context, scope string) engine.CircuitBreakerState
}

// ClientCounter reports connected live-feed clients.
type ClientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	store AuditReader
	cb    BreakerReader
	hub   ClientCounter
	scope string
}

func NewDashboardHandler(s AuditReader, cb BreakerReader, hub ClientCounter, scope string) *DashboardHandler {
	return &DashboardHandler{store: s, cb: cb, hub: hub, scope: scope}
}

// Metrics returns outcome counts from the audit log.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}

	metrics, err := h.store.GetProvisionMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	type metricsResponse struct {
		store.ProvisionMetrics
		WebSocketClients int `json:"websocket_clients"`
	}

	resp := metricsResponse{ProvisionMetrics: *metrics}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}

// BackendHealth returns the circuit breaker state for the provisioning backend.
func (h *DashboardHandler) BackendHealth(w http.ResponseWriter, r *http.Request) {
	type backendHealth struct {
		Scope          string                     `json:"scope"`
		BreakerEnabled bool                       `json:"breaker_enabled"`
		CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
	}

	resp := backendHealth{
		Scope:          h.scope,
		CircuitBreaker: engine.CircuitBreakerState{State: engine.StateClosed},
	}
	if h.cb != nil {
		resp.BreakerEnabled = true
		resp.CircuitBreaker = h.cb.GetState(r.Context(), h.scope)
	}

	respondJSON(w, http.StatusOK, resp)
}
