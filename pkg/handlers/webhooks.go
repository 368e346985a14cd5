package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/services"
)

// maxWebhookBodyBytes caps inbound platform payloads.
const maxWebhookBodyBytes = 1 << 20

// WebhooksHandler receives inbound platform events. Webhooks are not
// authenticated; they run under a system-scoped connection.
type WebhooksHandler struct {
	webhookService services.WebhookService
	logger         *zap.Logger
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(webhookService services.WebhookService, logger *zap.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// RegisterRoutes registers the webhooks handler's routes on the given mux.
func (h *WebhooksHandler) RegisterRoutes(mux *http.ServeMux, systemMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /webhooks/{platform}/{bot_id}", systemMiddleware(h.Receive))
}

// Receive handles POST /webhooks/{platform}/{bot_id}
func (h *WebhooksHandler) Receive(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")

	// A malformed bot ID cannot name a bot.
	botID, err := uuid.Parse(r.PathValue("bot_id"))
	if err != nil {
		WriteServiceError(w, h.logger, apperrors.ErrNotFound, "receive webhook")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteServiceError(w, h.logger,
				fmt.Errorf("%w: webhook body exceeds %d bytes", apperrors.ErrPayloadTooLarge, maxErr.Limit), "receive webhook")
			return
		}
		WriteServiceError(w, h.logger,
			fmt.Errorf("%w: failed to read webhook body", apperrors.ErrInvalidInput), "receive webhook")
		return
	}

	result, err := h.webhookService.Ingest(r.Context(), platform, botID, payload)
	if err != nil {
		WriteServiceError(w, h.logger, err, "receive webhook")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, result)
}
