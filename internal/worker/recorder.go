package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
	"github.com/Priya8975/userdb-provisioner/internal/websocket"
)

// AuditStore persists delivery outcomes.
type AuditStore interface {
	RecordProvision(ctx context.Context, rec domain.ProvisionRecord) error
}

// Broadcaster pushes live outcome events to dashboard clients.
type Broadcaster interface {
	Broadcast(event websocket.ProvisionEvent)
}

// Recorder writes one outcome to the audit log and the live feed. Either
// sink may be nil.
type Recorder struct {
	store  AuditStore
	hub    Broadcaster
	logger *slog.Logger
}

func NewRecorder(store AuditStore, hub Broadcaster, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		hub:    hub,
		logger: logger,
	}
}

// Record never fails the caller; sink errors are logged.
func (r *Recorder) Record(ctx context.Context, rec domain.ProvisionRecord) {
	if r.store != nil {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.store.RecordProvision(writeCtx, rec)
		cancel()
		if err != nil {
			r.logger.Error("failed to record provision outcome",
				"error", err,
				"id", rec.ID,
				"identity", rec.Identity,
				"outcome", rec.Outcome,
			)
		}
	}

	if r.hub != nil {
		r.hub.Broadcast(websocket.ProvisionEvent{
			Type:       "provision_" + string(rec.Outcome),
			ID:         rec.ID,
			WebhookID:  rec.WebhookID,
			Identity:   rec.Identity,
			Outcome:    string(rec.Outcome),
			Region:     rec.Region,
			Message:    rec.Message,
			DurationMs: rec.DurationMs,
			Timestamp:  rec.CreatedAt,
		})
	}
}
