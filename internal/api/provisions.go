package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
	"github.com/Priya8975/userdb-provisioner/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AuditReader is the read side of the provisioning audit log.
type AuditReader interface {
	ListProvisions(ctx context.Context, f store.ProvisionFilter) ([]domain.ProvisionRecord, error)
	GetProvision(ctx context.Context, id string) (*domain.ProvisionRecord, error)
	GetProvisionMetrics(ctx context.Context) (*store.ProvisionMetrics, error)
}

type ProvisionHandler struct {
	store AuditReader
}

func NewProvisionHandler(s AuditReader) *ProvisionHandler {
	return &ProvisionHandler{store: s}
}

func (h *ProvisionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}

	q := r.URL.Query()
	filter := store.ProvisionFilter{
		Identity: q.Get("identity"),
		Outcome:  domain.Outcome(q.Get("outcome")),
		Limit:    50,
	}

	if filter.Outcome != "" && !validOutcome(filter.Outcome) {
		respondError(w, http.StatusBadRequest, "unknown outcome")
		return
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = min(n, 500)
		}
	}

	records, err := h.store.ListProvisions(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list provisions")
		return
	}

	respondJSON(w, http.StatusOK, records)
}

func (h *ProvisionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "provision not found")
		return
	}

	rec, err := h.store.GetProvision(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get provision")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "provision not found")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}
