package controller

import (
	"time"

	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (string ids, validation tags).
// Controllers convert them to service layer DTOs. Tenant and actor always come
// from the token, never from the body.

type OrderItemRequest struct {
	MenuItemID string `json:"menu_item_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,min=1,max=99"`
}

type CustomerRequest struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
	Phone string `json:"phone" validate:"max=32"`
}

// CreateOrderRequest holds the input for creating an order. Provider is
// optional; when set a checkout session is opened right away.
type CreateOrderRequest struct {
	Items    []OrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
	Currency string             `json:"currency" validate:"omitempty,len=3,alpha"`
	Customer CustomerRequest    `json:"customer"`
	Notes    string             `json:"notes" validate:"max=500"`
	Provider *string            `json:"provider,omitempty" validate:"omitempty,min=1,max=32"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CreatePaymentIntentRequest struct {
	Provider string `json:"provider" validate:"required,max=32"`
}

type UpsertPaymentConfigRequest struct {
	SecretKey     string `json:"secret_key" validate:"required,max=512"`
	WebhookSecret string `json:"webhook_secret" validate:"max=512"`
	Active        *bool  `json:"active"`
}

// --- Response DTOs ---
// Amounts are decimal strings in major units ("12.50").

type OrderItemResponse struct {
	ID         string `json:"id"`
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	UnitPrice  string `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	LineTotal  string `json:"line_total"`
}

type CustomerResponse struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type OrderResponse struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Items        []OrderItemResponse `json:"items"`
	Subtotal     string              `json:"subtotal"`
	Tax          string              `json:"tax"`
	Total        string              `json:"total"`
	Currency     string              `json:"currency"`
	Customer     CustomerResponse    `json:"customer"`
	Notes        string              `json:"notes,omitempty"`
	CancelReason *string             `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type PaymentResponse struct {
	ID                string     `json:"id"`
	OrderID           string     `json:"order_id"`
	Provider          string     `json:"provider"`
	ProviderPaymentID string     `json:"provider_payment_id"`
	CheckoutURL       string     `json:"checkout_url,omitempty"`
	Amount            string     `json:"amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

type PaymentIntentResponse struct {
	Order       *OrderResponse   `json:"order"`
	Payment     *PaymentResponse `json:"payment"`
	CheckoutURL string           `json:"checkout_url"`
}

// CreateOrderResponse carries the order and, when a provider was requested,
// either the checkout session or a stable payment_error code.
type CreateOrderResponse struct {
	Order        *OrderResponse   `json:"order"`
	Payment      *PaymentResponse `json:"payment,omitempty"`
	CheckoutURL  string           `json:"checkout_url,omitempty"`
	PaymentError string           `json:"payment_error,omitempty"`
}

// PaymentConfigResponse never includes secret material.
type PaymentConfigResponse struct {
	Provider         string    `json:"provider"`
	Active           bool      `json:"active"`
	HasWebhookSecret bool      `json:"has_webhook_secret"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WebhookResponse is the only body a provider ever sees.
type WebhookResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

func FromOrder(o *order.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ID:         it.ID.String(),
			MenuItemID: it.MenuItemID.String(),
			Name:       it.Name,
			UnitPrice:  formatCents(it.UnitPriceCents),
			Quantity:   it.Quantity,
			LineTotal:  formatCents(it.LineTotalCents()),
		})
	}
	return &OrderResponse{
		ID:           o.ID.String(),
		Status:       string(o.Status),
		Items:        items,
		Subtotal:     formatCents(o.SubtotalCents),
		Tax:          formatCents(o.TaxCents),
		Total:        formatCents(o.TotalCents),
		Currency:     o.Currency,
		Customer:     CustomerResponse(o.Customer),
		Notes:        o.Notes,
		CancelReason: o.CancelReason,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                p.ID.String(),
		OrderID:           p.OrderID.String(),
		Provider:          string(p.Provider),
		ProviderPaymentID: p.ProviderPaymentID,
		CheckoutURL:       p.CheckoutURL,
		Amount:            formatCents(p.Amount.ValueCents),
		Currency:          p.Amount.Currency,
		Status:            string(p.Status),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		CompletedAt:       p.CompletedAt,
	}
}

func FromPaymentIntent(pi *service.PaymentIntent) *PaymentIntentResponse {
	return &PaymentIntentResponse{
		Order:       FromOrder(pi.Order),
		Payment:     FromPayment(pi.Payment),
		CheckoutURL: pi.CheckoutURL,
	}
}

func FromCreateOrder(resp *service.CreateOrderResponse) *CreateOrderResponse {
	out := &CreateOrderResponse{
		Order:        FromOrder(resp.Order),
		PaymentError: resp.PaymentError,
	}
	if resp.Payment != nil {
		out.Payment = FromPayment(resp.Payment.Payment)
		out.CheckoutURL = resp.Payment.CheckoutURL
	}
	return out
}

func FromPaymentConfig(c *payment.Config) *PaymentConfigResponse {
	return &PaymentConfigResponse{
		Provider:         string(c.Provider),
		Active:           c.Active,
		HasWebhookSecret: c.HasWebhookSecret(),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
