package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Payment errors
	ErrPaymentNotFound = errors.New("payment not found")
	ErrInvalidAmount   = errors.New("invalid amount")

	// Payment configuration errors
	ErrPaymentConfigNotFound   = errors.New("payment configuration not found")
	ErrPaymentConfigIncomplete = errors.New("payment configuration incomplete")
	ErrDecryptionFailed        = errors.New("secret decryption failed")

	// Provider errors
	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderTimeout     = errors.New("provider request timeout")
	ErrProviderRejected    = errors.New("payment provider rejected the request")

	// Webhook errors
	ErrWebhookEventNotFound      = errors.New("webhook event not found")
	ErrWebhookVerificationFailed = errors.New("webhook verification failed")
	ErrWebhookPayloadInvalid     = errors.New("webhook payload invalid")
	ErrWebhookClaimLost          = errors.New("webhook event claimed by another delivery")

	// Idempotency errors
	ErrIdempotencyKeyInvalid  = errors.New("invalid idempotency key")
	ErrIdempotencyKeyInFlight = errors.New("request with this idempotency key is in progress")
	ErrIdempotencyKeyMismatch = errors.New("idempotency key reused with a different request")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Lock errors
	ErrLockNotHeld = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation error with errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// InvalidTransitionError reports a status change outside the transition table.
// It is a caller bug, never a transient condition.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// NewInvalidTransitionError creates a new invalid transition error
func NewInvalidTransitionError(from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

// IsTransient reports whether err is a provider-side or network failure that is
// safe to retry with the same idempotency key.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrProviderTimeout)
}
