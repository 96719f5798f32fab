package testutil

import (
	"time"

	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/google/uuid"
)

func NewTestMenuItem(tenantID uuid.UUID, name string, priceCents int64) *order.MenuItem {
	return &order.MenuItem{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Name:       name,
		PriceCents: priceCents,
		Available:  true,
	}
}

// NewTestOrder builds an order with a single 2 x 12.50 line and no tax.
func NewTestOrder(tenantID uuid.UUID, status order.Status) *order.Order {
	now := time.Now()
	return &order.Order{
		ID:       uuid.New(),
		TenantID: tenantID,
		Status:   status,
		Items: []order.Item{{
			ID:             uuid.New(),
			MenuItemID:     uuid.New(),
			Name:           "Margherita",
			UnitPriceCents: 1250,
			Quantity:       2,
		}},
		SubtotalCents: 2500,
		TaxCents:      0,
		TotalCents:    2500,
		Currency:      "USD",
		Customer:      order.Customer{Name: "Ana", Email: "ana@example.com"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func NewTestPayment(o *order.Order, provider payment.Provider, providerPaymentID string) *payment.Payment {
	now := time.Now()
	return &payment.Payment{
		ID:                uuid.New(),
		TenantID:          o.TenantID,
		OrderID:           o.ID,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		CheckoutURL:       "https://checkout.mock.local/" + providerPaymentID,
		Amount:            payment.Amount{ValueCents: o.TotalCents, Currency: o.Currency},
		Status:            payment.StatusPending,
		Metadata:          make(map[string]any),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewTestConfig builds an active config. Secrets are stored as given, which the
// vault treats as legacy plaintext.
func NewTestConfig(tenantID uuid.UUID, provider payment.Provider, secretKey, webhookSecret string) *payment.Config {
	now := time.Now()
	return &payment.Config{
		TenantID:               tenantID,
		Provider:               provider,
		EncryptedSecretKey:     secretKey,
		EncryptedWebhookSecret: webhookSecret,
		Active:                 true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
