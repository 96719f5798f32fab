package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `id, tenant_id, aggregate_type, aggregate_id, event_type, payload,
		        status, retry_count, max_retries, created_at, published_at`

// OutboxRepository stores order events written in the same transaction as
// the state change they describe. The worker relays them afterwards.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OutboxRepository) Insert(ctx context.Context, e *outbox.Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO outbox (`+outboxColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.TenantID, e.AggregateType, e.AggregateID, e.EventType, payload,
		string(e.Status), e.RetryCount, e.MaxRetries, e.CreatedAt, e.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s outbox entry: %w", e.EventType, err)
	}
	return nil
}

// GetPending locks up to limit pending rows, oldest first. Rows locked by a
// concurrent relay are skipped, so call it inside a transaction.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox
		 WHERE status = $1
		 ORDER BY created_at, id
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		string(outbox.StatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*outbox.Entry
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = $1, published_at = $2 WHERE id = $3`,
		string(outbox.StatusPublished), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox entry %s published: %w", id, err)
	}
	return nil
}

// MarkFailed counts a failed publish. The entry stays pending until it runs
// out of retries.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox
		 SET retry_count = retry_count + 1,
		     status = CASE WHEN retry_count + 1 >= max_retries THEN $1 ELSE $2 END
		 WHERE id = $3`,
		string(outbox.StatusFailed), string(outbox.StatusPending), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox entry %s failed: %w", id, err)
	}
	return nil
}

func (r *OutboxRepository) PurgePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`DELETE FROM outbox WHERE status = $1 AND published_at < $2`,
		string(outbox.StatusPublished), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge published outbox entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOutboxEntry(s scanner) (*outbox.Entry, error) {
	var (
		e       outbox.Entry
		payload []byte
		status  string
	)
	err := s.Scan(&e.ID, &e.TenantID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload,
		&status, &e.RetryCount, &e.MaxRetries, &e.CreatedAt, &e.PublishedAt)
	if err != nil {
		return nil, fmt.Errorf("scan outbox entry: %w", err)
	}

	e.Status = outbox.Status(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload %s: %w", e.ID, err)
		}
	}
	return &e, nil
}
