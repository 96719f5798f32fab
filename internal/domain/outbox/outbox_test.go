package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	tenantID := uuid.New()
	aggregateID := uuid.New()
	payload := map[string]any{
		"order_id":    aggregateID.String(),
		"total_cents": 2899,
		"currency":    "USD",
	}

	entry := NewEntry(tenantID, AggregateOrder, aggregateID, EventOrderCreated, payload)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, tenantID, entry.TenantID)
	assert.Equal(t, "order", entry.AggregateType)
	assert.Equal(t, aggregateID, entry.AggregateID)
	assert.Equal(t, "order.created", entry.EventType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.PublishedAt)
}

func TestNewOrderStatusChanged(t *testing.T) {
	tenantID := uuid.New()
	orderID := uuid.New()

	entry := NewOrderStatusChanged(tenantID, orderID, "PAYMENT_PENDING", "PAID", "webhook")

	assert.Equal(t, EventOrderStatusChanged, entry.EventType)
	assert.Equal(t, orderID, entry.AggregateID)
	assert.Equal(t, "PAYMENT_PENDING", entry.Payload["from"])
	assert.Equal(t, "PAID", entry.Payload["to"])
	assert.Equal(t, "webhook", entry.Payload["source"])
	assert.Equal(t, tenantID.String(), entry.Payload["tenant_id"])
}

func TestNewEntry_UniqueIDs(t *testing.T) {
	ids := make(map[uuid.UUID]bool)
	for i := 0; i < 100; i++ {
		entry := NewEntry(uuid.New(), AggregateOrder, uuid.New(), EventOrderCreated, nil)
		assert.False(t, ids[entry.ID], "duplicate ID generated")
		ids[entry.ID] = true
	}
}
