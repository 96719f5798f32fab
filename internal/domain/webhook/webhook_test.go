package webhook_test

import (
	"testing"

	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/stretchr/testify/assert"
)

func TestStatus_IsHandled(t *testing.T) {
	tests := []struct {
		status webhook.Status
		want   bool
	}{
		{webhook.StatusCompleted, true},
		{webhook.StatusProcessing, false},
		{webhook.StatusFailed, false},
		{webhook.StatusNoConfig, false},
		{webhook.StatusVerificationFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsHandled())
		})
	}
}

func TestNewEntry(t *testing.T) {
	ref := webhook.Reference{
		ProviderEventID:   "evt_123",
		EventType:         "checkout.session.completed",
		ProviderPaymentID: "cs_123",
		Relevant:          true,
	}
	raw := []byte(`{"id":"evt_123"}`)

	e := webhook.NewEntry("stripe", ref, raw, webhook.StatusProcessing)

	assert.Equal(t, "stripe", e.Provider)
	assert.Equal(t, "evt_123", e.ProviderEventID)
	assert.Equal(t, "checkout.session.completed", e.EventType)
	assert.Equal(t, raw, e.Payload)
	assert.Equal(t, webhook.StatusProcessing, e.Status)
	assert.Equal(t, 1, e.Attempts)
	assert.Nil(t, e.ProcessedAt)
	assert.False(t, e.CreatedAt.IsZero())
}
