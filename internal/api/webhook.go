package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
	"github.com/Priya8975/userdb-provisioner/internal/webhook"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// Ensurer runs the provisioning workflow for one verified event.
type Ensurer interface {
	Ensure(ctx context.Context, event domain.InboundEvent) domain.Result
}

// OutcomeSink receives audit records off the request path.
type OutcomeSink interface {
	Submit(rec domain.ProvisionRecord) bool
}

type WebhookHandler struct {
	secret   string
	ensurer  Ensurer
	outcomes OutcomeSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewWebhookHandler creates the user-created delivery handler. outcomes may
// be nil.
func NewWebhookHandler(secret string, ensurer Ensurer, outcomes OutcomeSink, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:   secret,
		ensurer:  ensurer,
		outcomes: outcomes,
		logger:   logger,
		now:      time.Now,
	}
}

// UserCreated verifies, decodes and provisions one gateway delivery.
func (h *WebhookHandler) UserCreated(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	msgID := webhook.MessageID(r.Header)
	logger := h.logger.With(
		"webhook_id", msgID,
		"request_id", middleware.GetReqID(r.Context()),
	)

	var event domain.InboundEvent
	res := h.handle(w, r, logger, &event)

	h.record(msgID, event.Type, res, start)
	reportResult(w, res)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, logger *slog.Logger, event *domain.InboundEvent) domain.Result {
	// The signature covers the exact bytes received, so read them before
	// any parsing.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("webhook body too large", "limit", tooLarge.Limit)
		} else {
			logger.Warn("failed to read webhook body", "error", err)
		}
		return domain.Result{Outcome: domain.OutcomeMalformed, Message: "unreadable request body"}
	}

	verification := webhook.Verify(r.Header, body, h.secret, h.now())
	if !verification.Valid {
		logger.Warn("webhook signature rejected",
			"reason", verification.Reason,
			"remote_addr", r.RemoteAddr,
		)
		return domain.Result{Outcome: domain.OutcomeRejected, Message: "invalid signature"}
	}

	decoded, err := webhook.Decode(body)
	if err != nil {
		logger.Warn("malformed webhook payload", "error", err)
		return domain.Result{Outcome: domain.OutcomeMalformed, Message: "malformed payload"}
	}
	*event = decoded

	return h.ensurer.Ensure(r.Context(), decoded)
}

func (h *WebhookHandler) record(msgID, eventType string, res domain.Result, start time.Time) {
	if h.outcomes == nil {
		return
	}

	rec := domain.ProvisionRecord{
		ID:         uuid.NewString(),
		WebhookID:  msgID,
		Identity:   res.Identity,
		EventType:  eventType,
		Outcome:    res.Outcome,
		Region:     res.Region,
		Message:    res.Message,
		DurationMs: int(time.Since(start).Milliseconds()),
		CreatedAt:  time.Now().UTC(),
	}
	if res.Resource != nil {
		rec.ResourceName = res.Resource.Name
	}
	h.outcomes.Submit(rec)
}
