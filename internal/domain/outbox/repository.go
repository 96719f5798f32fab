package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert creates a new outbox entry (typically inside a transaction)
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns pending outbox entries up to the given limit.
	// Rows are locked, so call it inside a transaction.
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished marks an outbox entry as published
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed marks an outbox entry as failed and increments retry count
	MarkFailed(ctx context.Context, id uuid.UUID) error

	// PurgePublished deletes published entries older than cutoff
	PurgePublished(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher delivers relayed entries to the event backend.
type Publisher interface {
	Publish(ctx context.Context, entry *Entry) error
	Close() error
}
