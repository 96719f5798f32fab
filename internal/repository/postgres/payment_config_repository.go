package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentConfigRepository stores vault ciphertext only.
type PaymentConfigRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentConfigRepository(pool *pgxpool.Pool) *PaymentConfigRepository {
	return &PaymentConfigRepository{pool: pool}
}

func (r *PaymentConfigRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *PaymentConfigRepository) GetActive(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error) {
	return scanPaymentConfig(r.db(ctx).QueryRow(ctx,
		`SELECT tenant_id, provider, encrypted_secret_key, encrypted_webhook_secret, active, created_at, updated_at
		 FROM payment_configs WHERE tenant_id = $1 AND provider = $2 AND active`,
		tenantID, string(provider)))
}

func (r *PaymentConfigRepository) Get(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error) {
	return scanPaymentConfig(r.db(ctx).QueryRow(ctx,
		`SELECT tenant_id, provider, encrypted_secret_key, encrypted_webhook_secret, active, created_at, updated_at
		 FROM payment_configs WHERE tenant_id = $1 AND provider = $2`,
		tenantID, string(provider)))
}

func (r *PaymentConfigRepository) Upsert(ctx context.Context, c *payment.Config) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_configs
		 (tenant_id, provider, encrypted_secret_key, encrypted_webhook_secret, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id, provider) DO UPDATE SET
		   encrypted_secret_key = EXCLUDED.encrypted_secret_key,
		   encrypted_webhook_secret = EXCLUDED.encrypted_webhook_secret,
		   active = EXCLUDED.active,
		   updated_at = EXCLUDED.updated_at`,
		c.TenantID, string(c.Provider), c.EncryptedSecretKey, c.EncryptedWebhookSecret, c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert payment config: %w", err)
	}
	return nil
}

func scanPaymentConfig(s scanner) (*payment.Config, error) {
	c := &payment.Config{}
	var provider string
	err := s.Scan(&c.TenantID, &provider, &c.EncryptedSecretKey, &c.EncryptedWebhookSecret, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentConfigNotFound
		}
		return nil, fmt.Errorf("scan payment config: %w", err)
	}
	c.Provider = payment.Provider(provider)
	return c, nil
}
