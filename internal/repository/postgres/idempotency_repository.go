package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyRepository implements idempotency.Store. The primary key on
// (tenant_id, key) is the insert-if-absent primitive; expired rows are
// reclaimed in place.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *IdempotencyRepository) Reserve(ctx context.Context, rec *idempotency.Record) (*idempotency.Record, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var key string
		err := r.db(ctx).QueryRow(ctx,
			`INSERT INTO idempotency_keys (tenant_id, key, request_hash, state, created_at, expires_at)
			 VALUES ($1, $2, $3, 'pending', $4, $5)
			 ON CONFLICT (tenant_id, key) DO UPDATE SET
			   request_hash = EXCLUDED.request_hash,
			   state = 'pending',
			   response_status = 0,
			   response_body = NULL,
			   content_type = '',
			   created_at = EXCLUDED.created_at,
			   expires_at = EXCLUDED.expires_at
			 WHERE idempotency_keys.expires_at <= NOW()
			 RETURNING key`,
			rec.TenantID, rec.Key, rec.RequestHash, rec.CreatedAt, rec.ExpiresAt,
		).Scan(&key)
		if err == nil {
			return nil, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
		}

		existing, err := r.get(ctx, rec.TenantID, rec.Key)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		// Purged between the two statements; try again.
	}
	return nil, false, fmt.Errorf("reserve idempotency key: contention on %s", rec.Key)
}

func (r *IdempotencyRepository) get(ctx context.Context, tenantID uuid.UUID, key string) (*idempotency.Record, error) {
	rec := &idempotency.Record{}
	var state string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT tenant_id, key, request_hash, state, response_status, response_body, content_type, created_at, expires_at
		 FROM idempotency_keys WHERE tenant_id = $1 AND key = $2`, tenantID, key,
	).Scan(&rec.TenantID, &rec.Key, &rec.RequestHash, &state, &rec.ResponseStatus, &rec.ResponseBody,
		&rec.ContentType, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	rec.State = idempotency.State(state)
	return rec, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, rec *idempotency.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE idempotency_keys
		 SET state = 'completed', response_status = $3, response_body = $4, content_type = $5
		 WHERE tenant_id = $1 AND key = $2`,
		rec.TenantID, rec.Key, rec.ResponseStatus, rec.ResponseBody, rec.ContentType,
	)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) Release(ctx context.Context, tenantID uuid.UUID, key string) error {
	_, err := r.db(ctx).Exec(ctx,
		`DELETE FROM idempotency_keys WHERE tenant_id = $1 AND key = $2 AND state = 'pending'`, tenantID, key)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) Purge(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
