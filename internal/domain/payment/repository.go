package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create creates a new payment
	Create(ctx context.Context, payment *Payment) error

	// GetByProviderPaymentID locates a payment from an inbound webhook.
	// Not tenant-scoped: the provider reference is the only join key a webhook carries.
	GetByProviderPaymentID(ctx context.Context, provider Provider, providerPaymentID string) (*Payment, error)

	// GetForUpdate retrieves a payment and locks its row for the surrounding transaction
	GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)

	// ListByOrder lists payment attempts for an order, newest first
	ListByOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]*Payment, error)

	// UpdateStatus persists status, updated_at and completed_at
	UpdateStatus(ctx context.Context, payment *Payment) error
}

// Config is the per-tenant, per-provider credential bundle.
// Secret fields hold vault ciphertext, never plaintext.
type Config struct {
	TenantID               uuid.UUID
	Provider               Provider
	EncryptedSecretKey     string
	EncryptedWebhookSecret string
	Active                 bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasWebhookSecret reports whether inbound webhooks can be verified.
func (c *Config) HasWebhookSecret() bool {
	return c.EncryptedWebhookSecret != ""
}

// ConfigRepository persists payment provider credentials.
type ConfigRepository interface {
	// GetActive returns the active config for (tenant, provider)
	GetActive(ctx context.Context, tenantID uuid.UUID, provider Provider) (*Config, error)

	// Get returns the config regardless of its active flag
	Get(ctx context.Context, tenantID uuid.UUID, provider Provider) (*Config, error)

	// Upsert inserts or replaces the config for (tenant, provider)
	Upsert(ctx context.Context, cfg *Config) error
}
