package outbox

import (
	"time"

	"github.com/google/uuid"
)

const (
	AggregateOrder = "order"

	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type Entry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(tenantID uuid.UUID, aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		TenantID:      tenantID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		RetryCount:    0,
		MaxRetries:    5,
		CreatedAt:     time.Now(),
	}
}

// NewOrderStatusChanged records a status change of an order. source is the
// component that caused it: "customer", "staff", "checkout" or "webhook".
func NewOrderStatusChanged(tenantID, orderID uuid.UUID, from, to, source string) *Entry {
	return NewEntry(tenantID, AggregateOrder, orderID, EventOrderStatusChanged, map[string]any{
		"order_id":  orderID.String(),
		"tenant_id": tenantID.String(),
		"from":      from,
		"to":        to,
		"source":    source,
	})
}
