package controller

import (
	"net/http"

	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/go-chi/chi/v5"
)

// PaymentConfigController manages a tenant's provider credentials. Staff only.
type PaymentConfigController struct {
	configService *service.PaymentConfigService
}

func NewPaymentConfigController(configService *service.PaymentConfigService) *PaymentConfigController {
	return &PaymentConfigController{configService: configService}
}

// Upsert handles PUT /api/v1/payment-configs/{provider}
func (h *PaymentConfigController) Upsert(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpsertPaymentConfigRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	cfg, err := h.configService.Upsert(r.Context(), service.UpsertPaymentConfigRequest{
		TenantID:      principal.TenantID,
		Provider:      payment.Provider(chi.URLParam(r, "provider")),
		SecretKey:     req.SecretKey,
		WebhookSecret: req.WebhookSecret,
		Active:        active,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPaymentConfig(cfg))
}

// Get handles GET /api/v1/payment-configs/{provider}
func (h *PaymentConfigController) Get(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	cfg, err := h.configService.Get(r.Context(), principal.TenantID, payment.Provider(chi.URLParam(r, "provider")))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPaymentConfig(cfg))
}
