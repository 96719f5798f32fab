package order

import (
	"strings"
	"time"

	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MaxItems        = 50
	MaxItemQuantity = 99
	maxNotesLength  = 500
)

// Actor identifies who is asking for a cancellation.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorStaff    Actor = "staff"
)

// Item is an immutable price/quantity snapshot taken at creation time.
type Item struct {
	ID             uuid.UUID
	MenuItemID     uuid.UUID
	Name           string
	UnitPriceCents int64
	Quantity       int
}

// LineTotalCents returns unit price times quantity.
func (i Item) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// Customer holds the contact details supplied with the order.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Order represents a customer's purchase from one tenant.
type Order struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Status        Status
	Items         []Item
	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
	Currency      string
	Customer      Customer
	Notes         string
	CancelReason  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrder validates the line items and freezes the totals. Totals are never
// recomputed after this point.
func NewOrder(tenantID uuid.UUID, items []Item, currency string, taxRate decimal.Decimal, customer Customer, notes string) (*Order, error) {
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("tenant_id", "is required")
	}
	if len(items) == 0 {
		return nil, errors.NewValidationError("items", "must contain at least one item")
	}
	if len(items) > MaxItems {
		return nil, errors.NewValidationError("items", "too many items")
	}
	if len(currency) != 3 {
		return nil, errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	if taxRate.IsNegative() {
		return nil, errors.NewValidationError("tax_rate", "cannot be negative")
	}
	if len(notes) > maxNotesLength {
		return nil, errors.NewValidationError("notes", "too long")
	}

	var subtotal int64
	snapshot := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return nil, errors.NewValidationError("quantity", "must be between 1 and 99")
		}
		if it.UnitPriceCents < 0 {
			return nil, errors.NewValidationError("unit_price", "cannot be negative")
		}
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		subtotal += it.LineTotalCents()
		snapshot = append(snapshot, it)
	}

	tax := ComputeTaxCents(subtotal, taxRate)
	now := time.Now()
	return &Order{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Status:        StatusCreated,
		Items:         snapshot,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
		Currency:      strings.ToUpper(currency),
		Customer:      customer,
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ComputeTaxCents rounds half away from zero to the nearest cent.
func ComputeTaxCents(subtotalCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotalCents).Mul(rate).Round(0).IntPart()
}

// TransitionTo moves the order along one edge of the transition table.
func (o *Order) TransitionTo(to Status) error {
	if !IsValidTransition(o.Status, to) {
		return errors.NewInvalidTransitionError(string(o.Status), string(to))
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

// Cancel applies the actor-specific cancellation rule before transitioning.
func (o *Order) Cancel(actor Actor, reason string) error {
	if o.Status.IsTerminal() {
		return errors.NewInvalidTransitionError(string(o.Status), string(StatusCancelled))
	}

	switch actor {
	case ActorStaff:
		if !CanStaffCancel(o.Status) {
			return errors.ErrForbidden
		}
	case ActorCustomer:
		if !CanCustomerCancel(o.Status) {
			return errors.NewDomainError(
				"cancel_forbidden",
				"order in status "+string(o.Status)+" can only be cancelled by staff",
				errors.ErrForbidden,
			)
		}
	default:
		return errors.ErrForbidden
	}

	if err := o.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	if reason != "" {
		o.CancelReason = &reason
	}
	return nil
}

// Amount returns the frozen total in the smallest currency unit.
func (o *Order) Amount() (int64, string) {
	return o.TotalCents, o.Currency
}
