package payment_test

import (
	"testing"

	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingPayment(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(uuid.Nil, uuid.New(), uuid.New(), payment.ProviderMock, "cs_"+uuid.NewString(), "https://pay.example/cs", payment.Amount{ValueCents: 5000, Currency: "USD"})
	require.NoError(t, err)
	return p
}

func TestNewPayment_Valid(t *testing.T) {
	p := newPendingPayment(t)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, payment.ProviderMock, p.Provider)
	assert.Nil(t, p.CompletedAt)
}

func TestNewPayment_Validation(t *testing.T) {
	tests := []struct {
		name      string
		provider  payment.Provider
		reference string
		amount    payment.Amount
	}{
		{"zero amount", payment.ProviderMock, "cs_1", payment.Amount{ValueCents: 0, Currency: "USD"}},
		{"negative amount", payment.ProviderMock, "cs_1", payment.Amount{ValueCents: -5, Currency: "USD"}},
		{"empty currency", payment.ProviderMock, "cs_1", payment.Amount{ValueCents: 5, Currency: ""}},
		{"short currency", payment.ProviderMock, "cs_1", payment.Amount{ValueCents: 5, Currency: "US"}},
		{"no reference", payment.ProviderMock, "", payment.Amount{ValueCents: 5, Currency: "USD"}},
		{"no provider", "", "cs_1", payment.Amount{ValueCents: 5, Currency: "USD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := payment.NewPayment(uuid.Nil, uuid.New(), uuid.New(), tt.provider, tt.reference, "", tt.amount)
			assert.ErrorIs(t, err, errors.ErrValidationFailed)
		})
	}
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "100.50 USD", payment.Amount{ValueCents: 10050, Currency: "USD"}.String())
	assert.Equal(t, "50.00 EUR", payment.Amount{ValueCents: 5000, Currency: "EUR"}.String())
}

// --- State Machine Tests ---

func TestStateMachine_PendingToCompleted(t *testing.T) {
	p := newPendingPayment(t)
	require.NoError(t, p.MarkCompleted())
	assert.Equal(t, payment.StatusCompleted, p.Status)
	assert.NotNil(t, p.CompletedAt)
}

func TestStateMachine_PendingToFailed(t *testing.T) {
	p := newPendingPayment(t)
	require.NoError(t, p.MarkFailed())
	assert.Equal(t, payment.StatusFailed, p.Status)
}

func TestStateMachine_LateSuccessAfterFailure(t *testing.T) {
	p := newPendingPayment(t)
	require.NoError(t, p.MarkFailed())
	require.NoError(t, p.MarkCompleted())
	assert.Equal(t, payment.StatusCompleted, p.Status)
}

func TestStateMachine_CompletedToRefunded(t *testing.T) {
	p := newPendingPayment(t)
	require.NoError(t, p.MarkCompleted())
	require.NoError(t, p.MarkRefunded())
	assert.Equal(t, payment.StatusRefunded, p.Status)
	assert.True(t, p.IsTerminal())
}

func TestStateMachine_FailureNeverOverwritesSuccess(t *testing.T) {
	p := newPendingPayment(t)
	require.NoError(t, p.MarkCompleted())

	err := p.MarkFailed()
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, payment.StatusCompleted, p.Status)
}

func TestStateMachine_RefundOnlyFromCompleted(t *testing.T) {
	p := newPendingPayment(t)
	assert.ErrorIs(t, p.MarkRefunded(), errors.ErrInvalidStateTransition)
}

func TestStateMachine_RefundedIsTerminal(t *testing.T) {
	p := newPendingPayment(t)
	require.NoError(t, p.MarkCompleted())
	require.NoError(t, p.MarkRefunded())

	assert.Error(t, p.MarkCompleted())
	assert.Error(t, p.MarkFailed())
	assert.Error(t, p.MarkRefunded())
}

func TestConfig_HasWebhookSecret(t *testing.T) {
	cfg := &payment.Config{EncryptedSecretKey: "a:b:c"}
	assert.False(t, cfg.HasWebhookSecret())

	cfg.EncryptedWebhookSecret = "d:e:f"
	assert.True(t, cfg.HasWebhookSecret())
}
