package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Status is the processing status of a ledger entry.
type Status string

const (
	StatusNoConfig           Status = "NO_CONFIG"
	StatusVerificationFailed Status = "VERIFICATION_FAILED"
	StatusProcessing         Status = "PROCESSING"
	StatusCompleted          Status = "COMPLETED"
	StatusFailed             Status = "FAILED"
)

// IsHandled reports whether a delivery with this status should be deduplicated.
// Only COMPLETED counts; every other status is retried on redelivery.
func (s Status) IsHandled() bool {
	return s == StatusCompleted
}

// Entry is one ledger row per (provider, provider event id).
type Entry struct {
	ID              uuid.UUID
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
	Status          Status
	Attempts        int
	LastError       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedAt     *time.Time
}

// NewEntry builds a ledger entry for a delivery.
func NewEntry(provider string, ref Reference, payload []byte, status Status) *Entry {
	now := time.Now()
	return &Entry{
		ID:              uuid.New(),
		Provider:        provider,
		ProviderEventID: ref.ProviderEventID,
		EventType:       ref.EventType,
		Payload:         payload,
		Status:          status,
		Attempts:        1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// EventStatus is the provider-agnostic payment outcome vocabulary.
type EventStatus string

const (
	EventSucceeded EventStatus = "succeeded"
	EventFailed    EventStatus = "failed"
	EventRefunded  EventStatus = "refunded"
	EventPending   EventStatus = "pending"
)

// Reference is what can be read from a payload before it is trusted: enough
// to find the payment, its tenant and the ledger key. It drives lookups only.
type Reference struct {
	ProviderEventID   string
	EventType         string
	ProviderPaymentID string
	// Relevant is false for event types the reconciler does not process.
	Relevant bool
}

// NormalizedEvent is produced by a provider adapter from a verified payload.
type NormalizedEvent struct {
	Type              string
	ProviderEventID   string
	ProviderPaymentID string
	Status            EventStatus
	Metadata          map[string]string
}
