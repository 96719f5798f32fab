package providers

import (
	"context"

	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/google/uuid"
)

// Credentials are the tenant's decrypted provider secrets. They live only for
// the duration of one call and are never logged.
type Credentials struct {
	SecretKey string
}

type CheckoutRequest struct {
	OrderID     uuid.UUID
	TenantID    uuid.UUID
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	// IdempotencyKey is forwarded so a retried call reuses the same session.
	IdempotencyKey string
	Metadata       map[string]string
}

type CheckoutSession struct {
	ProviderPaymentID string
	CheckoutURL       string
}

// Provider adapts one payment provider. Implementations only make outbound
// HTTP calls; they never touch storage.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string

	// CreateCheckoutSession starts a hosted payment flow for an order.
	CreateCheckoutSession(ctx context.Context, creds Credentials, req CheckoutRequest) (*CheckoutSession, error)

	// ExtractReference reads correlation ids from an unverified payload.
	// The result is only used for lookups, never for effects.
	ExtractReference(rawBody []byte) (webhook.Reference, error)

	// VerifyWebhook checks the payload signature with the tenant's webhook secret.
	VerifyWebhook(rawBody []byte, signature, secret string) error

	// NormalizeEvent maps a verified payload onto the provider-agnostic event.
	NormalizeEvent(rawBody []byte) (*webhook.NormalizedEvent, error)
}

// Metadata keys embedded in every checkout session for correlation.
const (
	MetadataOrderID  = "order_id"
	MetadataTenantID = "tenant_id"
)

func correlationMetadata(req CheckoutRequest) map[string]string {
	md := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		md[k] = v
	}
	md[MetadataOrderID] = req.OrderID.String()
	md[MetadataTenantID] = req.TenantID.String()
	return md
}
