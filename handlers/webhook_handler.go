package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/courseloft/teams-api/billing"
	"github.com/courseloft/teams-api/services"
	"github.com/courseloft/teams-api/storage"
)

// maxWebhookBodyBytes bounds provider payload size.
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler is the ingress for signed payment-provider events.
// Signature verification over the raw body is the sole integrity gate:
// nothing mutates unless it passes.
type WebhookHandler struct {
	secret     string
	reconciler services.Reconciler
	archiver   storage.Archiver // nil disables archiving
	logger     *slog.Logger
	now        func() time.Time
}

func NewWebhookHandler(secret string, reconciler services.Reconciler, archiver storage.Archiver, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:     secret,
		reconciler: reconciler,
		archiver:   archiver,
		logger:     logger,
		now:        time.Now,
	}
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := billing.VerifySignature(h.secret, r.Header.Get(billing.SignatureHeader), body, h.now()); err != nil {
		h.logger.Warn("webhook signature rejected", slog.Any("error", err))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	event, err := billing.ParseEvent(body)
	if err != nil {
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}

	h.archive(r.Context(), event.ID, body)

	if err := h.reconciler.HandleEvent(r.Context(), event); err != nil {
		// 500 tells the provider to redeliver; handlers are re-runnable.
		h.logger.Error("webhook handler failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
			slog.Any("error", err))
		http.Error(w, "event processing failed", http.StatusInternalServerError)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"received": true}); err != nil {
		h.logger.Error("failed to write webhook acknowledgement", slog.Any("error", err))
	}
}

// archive stores the raw payload. Errors never fail the delivery.
func (h *WebhookHandler) archive(ctx context.Context, eventID string, body []byte) {
	if h.archiver == nil {
		return
	}
	if err := h.archiver.ArchiveEvent(ctx, eventID, body); err != nil {
		h.logger.Warn("failed to archive webhook payload",
			slog.String("event_id", eventID),
			slog.Any("error", err))
	}
}
