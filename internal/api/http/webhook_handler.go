package http

import (
	"io"
	"net/http"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/service"
)

const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Status domain.WebhookStatus `json:"status"`
}

// WebhookHandler is the provider's notification intake.
type WebhookHandler struct {
	ledger service.LedgerService
}

func NewWebhookHandler(ledger service.LedgerService) *WebhookHandler {
	return &WebhookHandler{ledger: ledger}
}

// HandlePayPal acknowledges every authenticity or event-type rejection with
// 200 so the provider stops resending. Only unknown payments and internal
// failures are reported as errors, which the provider retries.
func (h *WebhookHandler) HandlePayPal(w http.ResponseWriter, r *http.Request) {
	// the signature covers these exact bytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	status, err := h.ledger.HandleWebhook(r.Context(), r.Header, body)
	if err != nil {
		if status == domain.WebhookNotFound {
			writeJSON(w, http.StatusNotFound, webhookResponse{Status: status})
			return
		}
		logger.ErrorContext(r.Context(), "Webhook processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Status: status})
}
