package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/cassiomorais/orders/internal/service"
	"github.com/go-chi/chi/v5"
)

// WebhookController receives provider callbacks. The body is read once as raw
// bytes and handed over untouched; signature verification depends on it.
type WebhookController struct {
	webhookService *service.WebhookService
	maxBodyBytes   int64
}

func NewWebhookController(webhookService *service.WebhookService, maxBodyBytes int64) *WebhookController {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhookController{webhookService: webhookService, maxBodyBytes: maxBodyBytes}
}

// Handle handles POST /webhooks/{provider}
func (h *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, WebhookResponse{Acknowledged: false})
		return
	}

	res := h.webhookService.HandleProviderWebhook(r.Context(), chi.URLParam(r, "provider"), body, r.Header)
	writeJSON(w, res.StatusCode, WebhookResponse{Acknowledged: res.Acknowledged})
}
