package webhook

import (
	"context"
	"time"
)

// Repository defines the ledger persistence. The (provider, provider_event_id)
// unique constraint is the deduplication primitive.
type Repository interface {
	// Get returns the entry or ErrWebhookEventNotFound
	Get(ctx context.Context, provider, providerEventID string) (*Entry, error)

	// Record stores a rejected delivery (NO_CONFIG, VERIFICATION_FAILED).
	// It never overwrites a COMPLETED entry or one currently PROCESSING.
	Record(ctx context.Context, entry *Entry) error

	// Claim atomically moves the entry to PROCESSING, inserting it if absent.
	// It returns false when another delivery owns it or it is already COMPLETED.
	// A PROCESSING entry untouched for longer than staleAfter can be reclaimed.
	Claim(ctx context.Context, entry *Entry, staleAfter time.Duration) (bool, error)

	// MarkCompleted finalizes an entry returned by Claim. It returns
	// ErrWebhookClaimLost when the entry was reclaimed since, so the effect
	// transaction it runs in rolls back.
	MarkCompleted(ctx context.Context, claimed *Entry) error

	// MarkFailed records an unexpected processing error so redelivery is
	// retried. A no-op when the claim is no longer held.
	MarkFailed(ctx context.Context, claimed *Entry, reason string) error

	// PurgeBefore removes audit-terminal entries last touched before cutoff
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
