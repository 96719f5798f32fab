package service

import (
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/google/uuid"
)

// Controllers convert their HTTP DTOs to these types.

type CreateOrderItem struct {
	MenuItemID uuid.UUID
	Quantity   int
}

type CreateOrderRequest struct {
	TenantID uuid.UUID
	Items    []CreateOrderItem
	// Currency defaults to the configured checkout currency when empty
	Currency string
	Customer order.Customer
	Notes    string
	// Provider, when set, opens a checkout session right after the order is stored
	Provider       *payment.Provider
	IdempotencyKey string
}

type CreateOrderResponse struct {
	Order   *order.Order
	Payment *PaymentIntent
	// PaymentError is a stable code set when the order was stored but the
	// checkout session could not be opened. The order stays CREATED.
	PaymentError string
}

type UpdateStatusRequest struct {
	TenantID uuid.UUID
	OrderID  uuid.UUID
	Status   order.Status
}

type CancelOrderRequest struct {
	TenantID uuid.UUID
	OrderID  uuid.UUID
	Actor    order.Actor
	Reason   string
}

type CreatePaymentIntentRequest struct {
	TenantID       uuid.UUID
	OrderID        uuid.UUID
	Provider       payment.Provider
	IdempotencyKey string
}

type PaymentIntent struct {
	Order       *order.Order
	Payment     *payment.Payment
	CheckoutURL string
}

type UpsertPaymentConfigRequest struct {
	TenantID      uuid.UUID
	Provider      payment.Provider
	SecretKey     string
	WebhookSecret string
	Active        bool
}
