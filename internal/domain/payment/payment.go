package payment

import (
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the payment status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

// Provider represents the external payment provider
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderMock   Provider = "mock"
)

// Payment is one attempt to collect money for an order through one provider.
// Provider and OrderID never change after creation.
type Payment struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	OrderID           uuid.UUID
	Provider          Provider
	ProviderPaymentID string
	CheckoutURL       string
	Amount            Amount
	Status            Status
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	return validateAmount(a)
}

// NewPayment creates a pending payment for a checkout session the provider
// has already opened.
func NewPayment(
	id uuid.UUID,
	tenantID uuid.UUID,
	orderID uuid.UUID,
	provider Provider,
	providerPaymentID string,
	checkoutURL string,
	amount Amount,
) (*Payment, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if providerPaymentID == "" {
		return nil, errors.NewValidationError("provider_payment_id", "cannot be empty")
	}
	if provider == "" {
		return nil, errors.NewValidationError("provider", "cannot be empty")
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	now := time.Now()
	return &Payment{
		ID:                id,
		TenantID:          tenantID,
		OrderID:           orderID,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		CheckoutURL:       checkoutURL,
		Amount:            amount,
		Status:            StatusPending,
		Metadata:          make(map[string]any),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanTransitionTo checks if the payment can move to the given status.
// A late success may follow a failure; nothing overwrites a success except a refund.
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {
			StatusCompleted,
			StatusFailed,
		},
		StatusFailed: {
			StatusCompleted,
		},
		StatusCompleted: {
			StatusRefunded,
		},
		StatusRefunded: {}, // Terminal state
	}

	allowedTransitions, exists := transitions[p.Status]
	if !exists {
		return false
	}

	for _, allowed := range allowedTransitions {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the payment to a new status
func (p *Payment) TransitionTo(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewInvalidTransitionError(string(p.Status), string(newStatus))
	}

	now := time.Now()
	p.Status = newStatus
	p.UpdatedAt = now

	if newStatus == StatusCompleted || newStatus == StatusFailed {
		p.CompletedAt = &now
	}

	return nil
}

// MarkCompleted transitions the payment to completed status
func (p *Payment) MarkCompleted() error {
	return p.TransitionTo(StatusCompleted)
}

// MarkFailed transitions the payment to failed status
func (p *Payment) MarkFailed() error {
	return p.TransitionTo(StatusFailed)
}

// MarkRefunded transitions the payment to refunded status
func (p *Payment) MarkRefunded() error {
	return p.TransitionTo(StatusRefunded)
}

// IsTerminal checks if the payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusRefunded
}

func validateAmount(amount Amount) error {
	if amount.ValueCents <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if amount.Currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	// Simple currency validation (3-letter code)
	if len(amount.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}
