package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	stripewebhook "github.com/stripe/stripe-go/v74/webhook"
)

const (
	stripeSessionCompleted      = "checkout.session.completed"
	stripeSessionAsyncSucceeded = "checkout.session.async_payment_succeeded"
	stripeSessionAsyncFailed    = "checkout.session.async_payment_failed"
	stripeSessionExpired        = "checkout.session.expired"
)

var stripeSessionEvents = map[string]bool{
	stripeSessionCompleted:      true,
	stripeSessionAsyncSucceeded: true,
	stripeSessionAsyncFailed:    true,
	stripeSessionExpired:        true,
}

type StripeProvider struct {
	backends *stripe.Backends
}

type StripeOption func(*StripeProvider)

// WithStripeAPIURL points API calls at another base URL (stripe-mock, tests).
func WithStripeAPIURL(url string, httpClient *http.Client) StripeOption {
	return func(p *StripeProvider) {
		p.backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(url),
				HTTPClient:        httpClient,
				MaxNetworkRetries: stripe.Int64(0),
			}),
		}
	}
}

func NewStripeProvider(opts ...StripeOption) *StripeProvider {
	p := &StripeProvider{}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *StripeProvider) Name() string { return string(payment.ProviderStripe) }

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, creds Credentials, req CheckoutRequest) (*CheckoutSession, error) {
	if creds.SecretKey == "" {
		return nil, domainErrors.ErrPaymentConfigIncomplete
	}

	sc := client.New(creds.SecretKey, p.backends)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range correlationMetadata(req) {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sess, err := sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, classifyStripeError(ctx, err)
	}

	return &CheckoutSession{ProviderPaymentID: sess.ID, CheckoutURL: sess.URL}, nil
}

func classifyStripeError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("stripe: %w", domainErrors.ErrProviderTimeout)
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500 {
			return fmt.Errorf("stripe %d: %s: %w", se.HTTPStatusCode, se.Msg, domainErrors.ErrProviderUnavailable)
		}
		return fmt.Errorf("stripe %d: %s: %w", se.HTTPStatusCode, se.Msg, domainErrors.ErrProviderRejected)
	}
	return fmt.Errorf("stripe: %v: %w", err, domainErrors.ErrProviderUnavailable)
}

// stripeEnvelope is the subset of an event read before verification.
type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"object"`
	} `json:"data"`
}

func (p *StripeProvider) ExtractReference(rawBody []byte) (webhook.Reference, error) {
	var env stripeEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return webhook.Reference{}, fmt.Errorf("stripe: %w", domainErrors.ErrWebhookPayloadInvalid)
	}
	if env.ID == "" || env.Type == "" {
		return webhook.Reference{}, fmt.Errorf("stripe: missing event id or type: %w", domainErrors.ErrWebhookPayloadInvalid)
	}

	ref := webhook.Reference{
		ProviderEventID: env.ID,
		EventType:       env.Type,
	}
	if stripeSessionEvents[env.Type] && env.Data.Object.Object == "checkout.session" {
		ref.ProviderPaymentID = env.Data.Object.ID
		ref.Relevant = ref.ProviderPaymentID != ""
	}
	return ref, nil
}

func (p *StripeProvider) VerifyWebhook(rawBody []byte, signature, secret string) error {
	if secret == "" {
		return domainErrors.ErrPaymentConfigIncomplete
	}
	if err := stripewebhook.ValidatePayload(rawBody, signature, secret); err != nil {
		return fmt.Errorf("stripe: %v: %w", err, domainErrors.ErrWebhookVerificationFailed)
	}
	return nil
}

func (p *StripeProvider) NormalizeEvent(rawBody []byte) (*webhook.NormalizedEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("stripe: %w", domainErrors.ErrWebhookPayloadInvalid)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("stripe: event without data: %w", domainErrors.ErrWebhookPayloadInvalid)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("stripe: %w", domainErrors.ErrWebhookPayloadInvalid)
	}

	status, err := stripeSessionStatus(string(event.Type), sess.PaymentStatus)
	if err != nil {
		return nil, err
	}

	md := make(map[string]string, len(sess.Metadata))
	for k, v := range sess.Metadata {
		md[k] = v
	}

	return &webhook.NormalizedEvent{
		Type:              string(event.Type),
		ProviderEventID:   event.ID,
		ProviderPaymentID: sess.ID,
		Status:            status,
		Metadata:          md,
	}, nil
}

func stripeSessionStatus(eventType string, ps stripe.CheckoutSessionPaymentStatus) (webhook.EventStatus, error) {
	switch eventType {
	case stripeSessionCompleted:
		if ps == stripe.CheckoutSessionPaymentStatusPaid || ps == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			return webhook.EventSucceeded, nil
		}
		// Delayed methods complete the session before the money moves.
		return webhook.EventPending, nil
	case stripeSessionAsyncSucceeded:
		return webhook.EventSucceeded, nil
	case stripeSessionAsyncFailed, stripeSessionExpired:
		return webhook.EventFailed, nil
	default:
		return "", fmt.Errorf("stripe: unhandled event type %q: %w", eventType, domainErrors.ErrWebhookPayloadInvalid)
	}
}
