package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/google/uuid"
)

// MockSignatureHeader carries hex(HMAC-SHA256(secret, body)).
const MockSignatureHeader = "X-Mock-Signature"

const mockSessionCompleted = "checkout.session.completed"

// MockProvider is a local stand-in for a hosted checkout provider. Its
// webhooks use the same verification pipeline as real providers.
type MockProvider struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
}

type MockProviderOption func(*MockProvider)

func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithTimeoutRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.timeoutRate = rate }
}

func NewMockProvider(opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		name:    string(payment.ProviderMock),
		latency: 50 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) SignatureHeader() string { return MockSignatureHeader }

func (p *MockProvider) CreateCheckoutSession(ctx context.Context, creds Credentials, req CheckoutRequest) (*CheckoutSession, error) {
	if creds.SecretKey == "" {
		return nil, domainErrors.ErrPaymentConfigIncomplete
	}

	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", p.name, domainErrors.ErrProviderTimeout)
	}

	if rand.Float64() < p.timeoutRate {
		return nil, fmt.Errorf("%s: %w", p.name, domainErrors.ErrProviderTimeout)
	}
	if rand.Float64() < p.failureRate {
		return nil, fmt.Errorf("%s: simulated outage for order %s: %w", p.name, req.OrderID, domainErrors.ErrProviderUnavailable)
	}

	id := "mock_cs_" + uuid.New().String()
	return &CheckoutSession{
		ProviderPaymentID: id,
		CheckoutURL:       "https://checkout.mock.local/" + id,
	}, nil
}

// MockEvent is the webhook body the mock provider sends.
type MockEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *MockProvider) ExtractReference(rawBody []byte) (webhook.Reference, error) {
	var ev MockEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return webhook.Reference{}, fmt.Errorf("%s: %w", p.name, domainErrors.ErrWebhookPayloadInvalid)
	}
	if ev.ID == "" || ev.Type == "" {
		return webhook.Reference{}, fmt.Errorf("%s: missing event id or type: %w", p.name, domainErrors.ErrWebhookPayloadInvalid)
	}

	return webhook.Reference{
		ProviderEventID:   ev.ID,
		EventType:         ev.Type,
		ProviderPaymentID: ev.SessionID,
		Relevant:          ev.Type == mockSessionCompleted && ev.SessionID != "",
	}, nil
}

func (p *MockProvider) VerifyWebhook(rawBody []byte, signature, secret string) error {
	if secret == "" {
		return domainErrors.ErrPaymentConfigIncomplete
	}
	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(got, mockMAC(rawBody, secret)) {
		return fmt.Errorf("%s: %w", p.name, domainErrors.ErrWebhookVerificationFailed)
	}
	return nil
}

func (p *MockProvider) NormalizeEvent(rawBody []byte) (*webhook.NormalizedEvent, error) {
	var ev MockEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, domainErrors.ErrWebhookPayloadInvalid)
	}

	status := webhook.EventStatus(ev.Status)
	switch status {
	case webhook.EventSucceeded, webhook.EventFailed, webhook.EventRefunded, webhook.EventPending:
	default:
		return nil, fmt.Errorf("%s: unknown status %q: %w", p.name, ev.Status, domainErrors.ErrWebhookPayloadInvalid)
	}

	return &webhook.NormalizedEvent{
		Type:              ev.Type,
		ProviderEventID:   ev.ID,
		ProviderPaymentID: ev.SessionID,
		Status:            status,
		Metadata:          ev.Metadata,
	}, nil
}

// SignMock returns the X-Mock-Signature value for body.
func SignMock(body []byte, secret string) string {
	return hex.EncodeToString(mockMAC(body, secret))
}

func mockMAC(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
