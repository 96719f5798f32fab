package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookRepository is the webhook ledger. UNIQUE (provider, provider_event_id)
// makes concurrent deliveries of one event race on a single row.
type WebhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

func (r *WebhookRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *WebhookRepository) Get(ctx context.Context, provider, providerEventID string) (*webhook.Entry, error) {
	e := &webhook.Entry{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, provider, provider_event_id, event_type, payload, status, attempts, last_error,
		        created_at, updated_at, processed_at
		 FROM webhook_events WHERE provider = $1 AND provider_event_id = $2`,
		provider, providerEventID,
	).Scan(&e.ID, &e.Provider, &e.ProviderEventID, &e.EventType, &e.Payload, &status, &e.Attempts, &e.LastError,
		&e.CreatedAt, &e.UpdatedAt, &e.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrWebhookEventNotFound
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	e.Status = webhook.Status(status)
	return e, nil
}

func (r *WebhookRepository) Record(ctx context.Context, e *webhook.Entry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO webhook_events
		 (id, provider, provider_event_id, event_type, payload, status, attempts, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 1, $7, NOW(), NOW())
		 ON CONFLICT (provider, provider_event_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   attempts = webhook_events.attempts + 1,
		   last_error = EXCLUDED.last_error,
		   updated_at = NOW()
		 WHERE webhook_events.status NOT IN ('COMPLETED', 'PROCESSING')`,
		e.ID, e.Provider, e.ProviderEventID, e.EventType, e.Payload, string(e.Status), e.LastError,
	)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

func (r *WebhookRepository) Claim(ctx context.Context, e *webhook.Entry, staleAfter time.Duration) (bool, error) {
	var attempts int
	err := r.db(ctx).QueryRow(ctx,
		`INSERT INTO webhook_events
		 (id, provider, provider_event_id, event_type, payload, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 'PROCESSING', 1, NOW(), NOW())
		 ON CONFLICT (provider, provider_event_id) DO UPDATE SET
		   status = 'PROCESSING',
		   attempts = webhook_events.attempts + 1,
		   event_type = EXCLUDED.event_type,
		   payload = EXCLUDED.payload,
		   last_error = NULL,
		   updated_at = NOW()
		 WHERE webhook_events.status <> 'COMPLETED'
		   AND (webhook_events.status <> 'PROCESSING'
		        OR webhook_events.updated_at < NOW() - make_interval(secs => $6))
		 RETURNING attempts`,
		e.ID, e.Provider, e.ProviderEventID, e.EventType, e.Payload, staleAfter.Seconds(),
	).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claim webhook event: %w", err)
	}

	e.Status = webhook.StatusProcessing
	e.Attempts = attempts
	return true, nil
}

// MarkCompleted and MarkFailed only touch the row while it is still held by
// the given claim: PROCESSING, with the attempt count Claim returned.
func (r *WebhookRepository) MarkCompleted(ctx context.Context, claimed *webhook.Entry) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE webhook_events
		 SET status = 'COMPLETED', last_error = NULL, processed_at = NOW(), updated_at = NOW()
		 WHERE provider = $1 AND provider_event_id = $2
		   AND status = 'PROCESSING' AND attempts = $3`,
		claimed.Provider, claimed.ProviderEventID, claimed.Attempts,
	)
	if err != nil {
		return fmt.Errorf("complete webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrWebhookClaimLost
	}
	return nil
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, claimed *webhook.Entry, reason string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE webhook_events
		 SET status = 'FAILED', last_error = $4, updated_at = NOW()
		 WHERE provider = $1 AND provider_event_id = $2
		   AND status = 'PROCESSING' AND attempts = $3`,
		claimed.Provider, claimed.ProviderEventID, claimed.Attempts, reason,
	)
	if err != nil {
		return fmt.Errorf("fail webhook event: %w", err)
	}
	return nil
}

func (r *WebhookRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`DELETE FROM webhook_events WHERE updated_at < $1 AND status <> 'PROCESSING'`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
