package service

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/providers"
	"github.com/google/uuid"
)

// Cipher seals provider credentials at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// PaymentConfigService manages per-tenant provider credentials. Plaintext
// secrets exist only inside this service and the provider call they feed.
type PaymentConfigService struct {
	repo    payment.ConfigRepository
	cipher  Cipher
	factory *providers.Factory
}

func NewPaymentConfigService(repo payment.ConfigRepository, cipher Cipher, factory *providers.Factory) *PaymentConfigService {
	return &PaymentConfigService{repo: repo, cipher: cipher, factory: factory}
}

// Upsert encrypts and stores the credentials for (tenant, provider).
func (s *PaymentConfigService) Upsert(ctx context.Context, req UpsertPaymentConfigRequest) (*payment.Config, error) {
	if _, _, err := s.factory.Get(req.Provider); err != nil {
		return nil, domainErrors.NewValidationError("provider", "unsupported payment provider")
	}
	if req.SecretKey == "" {
		return nil, domainErrors.NewValidationError("secret_key", "is required")
	}

	encKey, err := s.cipher.Encrypt(req.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret key: %w", err)
	}

	var encWebhook string
	if req.WebhookSecret != "" {
		encWebhook, err = s.cipher.Encrypt(req.WebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("encrypt webhook secret: %w", err)
		}
	}

	now := time.Now()
	cfg := &payment.Config{
		TenantID:               req.TenantID,
		Provider:               req.Provider,
		EncryptedSecretKey:     encKey,
		EncryptedWebhookSecret: encWebhook,
		Active:                 req.Active,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("upsert payment config: %w", err)
	}
	return cfg, nil
}

// Get returns the stored config. Secret fields stay encrypted.
func (s *PaymentConfigService) Get(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error) {
	return s.repo.Get(ctx, tenantID, provider)
}

// Credentials decrypts the active secret key for an outbound provider call.
func (s *PaymentConfigService) Credentials(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (providers.Credentials, error) {
	cfg, err := s.repo.GetActive(ctx, tenantID, provider)
	if err != nil {
		return providers.Credentials{}, err
	}
	if cfg.EncryptedSecretKey == "" {
		return providers.Credentials{}, domainErrors.ErrPaymentConfigIncomplete
	}

	key, err := s.cipher.Decrypt(cfg.EncryptedSecretKey)
	if err != nil {
		return providers.Credentials{}, fmt.Errorf("decrypt secret key: %w", err)
	}
	return providers.Credentials{SecretKey: key}, nil
}

// ActiveConfig returns the active config used to verify inbound webhooks.
func (s *PaymentConfigService) ActiveConfig(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error) {
	cfg, err := s.repo.GetActive(ctx, tenantID, provider)
	if err != nil {
		return nil, err
	}
	if !cfg.HasWebhookSecret() {
		return nil, domainErrors.ErrPaymentConfigIncomplete
	}
	return cfg, nil
}

// WebhookSecret decrypts the webhook verification key of cfg.
func (s *PaymentConfigService) WebhookSecret(cfg *payment.Config) (string, error) {
	if !cfg.HasWebhookSecret() {
		return "", domainErrors.ErrPaymentConfigIncomplete
	}
	secret, err := s.cipher.Decrypt(cfg.EncryptedWebhookSecret)
	if err != nil {
		return "", fmt.Errorf("decrypt webhook secret: %w", err)
	}
	return secret, nil
}
