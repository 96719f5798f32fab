package order

import (
	"strings"

	"github.com/cassiomorais/orders/internal/domain/errors"
)

// Status represents the order status in the state machine
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusPaid           Status = "PAID"
	StatusAccepted       Status = "ACCEPTED"
	StatusPreparing      Status = "PREPARING"
	StatusReady          Status = "READY"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusCreated,
	StatusPaymentPending,
	StatusPaid,
	StatusAccepted,
	StatusPreparing,
	StatusReady,
	StatusCompleted,
	StatusCancelled,
}

// transitions is total: every status has an entry, terminal ones are empty.
var transitions = map[Status][]Status{
	StatusCreated:        {StatusPaymentPending, StatusCancelled},
	StatusPaymentPending: {StatusPaid, StatusCancelled},
	StatusPaid:           {StatusAccepted, StatusCancelled},
	StatusAccepted:       {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusCompleted, StatusCancelled},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// IsValidTransition reports whether from -> to is an edge of the transition table.
func IsValidTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the legal next statuses for s.
func NextStatuses(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanCustomerCancel is true only before the kitchen has committed to the order.
func CanCustomerCancel(s Status) bool {
	switch s {
	case StatusCreated, StatusPaymentPending, StatusPaid:
		return true
	default:
		return false
	}
}

// CanStaffCancel is true for every non-terminal status.
func CanStaffCancel(s Status) bool {
	return s.IsValid() && !s.IsTerminal()
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts user input into a Status, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", errors.NewValidationError("status", "unknown order status "+raw)
	}
	return s, nil
}
