package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, tenant_id, order_id, provider, provider_payment_id, checkout_url,
		        amount, currency, status, metadata, created_at, updated_at, completed_at`

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payments
		 (id, tenant_id, order_id, provider, provider_payment_id, checkout_url,
		  amount, currency, status, metadata, created_at, updated_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.TenantID, p.OrderID, string(p.Provider), p.ProviderPaymentID, p.CheckoutURL,
		centsToNumericString(p.Amount.ValueCents), p.Amount.Currency, string(p.Status), metadata,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.NewDomainError("duplicate_payment",
				fmt.Sprintf("payment for %s session %s already exists", p.Provider, p.ProviderPaymentID),
				domainErrors.ErrInvalidInput)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByProviderPaymentID finds the payment an inbound webhook refers to.
func (r *PaymentRepository) GetByProviderPaymentID(ctx context.Context, provider payment.Provider, providerPaymentID string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments WHERE provider = $1 AND provider_payment_id = $2`,
		string(provider), providerPaymentID))
}

// GetForUpdate locks the payment row until the transaction ends.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments WHERE tenant_id = $1 AND id = $2
		 FOR UPDATE`, tenantID, id))
}

// ListByOrder returns every payment attempt of an order, newest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]*payment.Payment, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments WHERE tenant_id = $1 AND order_id = $2
		 ORDER BY created_at DESC`, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdateStatus persists the status change of a payment.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET status = $1, updated_at = $2, completed_at = $3
		 WHERE tenant_id = $4 AND id = $5`,
		string(p.Status), p.UpdatedAt, p.CompletedAt, p.TenantID, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		provider  string
		amountStr string
		status    string
		metadata  []byte
	)
	err := s.Scan(
		&p.ID, &p.TenantID, &p.OrderID, &provider, &p.ProviderPaymentID, &p.CheckoutURL,
		&amountStr, &p.Amount.Currency, &status, &metadata, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	cents, err := numericStringToCents(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount.ValueCents = cents
	p.Provider = payment.Provider(provider)
	p.Status = payment.Status(status)

	p.Metadata = make(map[string]any)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return p, nil
}
