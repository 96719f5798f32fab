package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/cassiomorais/orders/internal/infrastructure/vault"
	"github.com/cassiomorais/orders/internal/providers"
	"github.com/cassiomorais/orders/internal/testutil"
	"github.com/cassiomorais/orders/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testSecretKey     = "sk_test_123"
	testWebhookSecret = "whsec_test_456"
	testMasterKey     = "0123456789abcdef0123456789abcdef"

	stubProviderName payment.Provider = "stub"
)

// harness wires every service against the in-memory repositories.
type harness struct {
	tenantID uuid.UUID

	orders   *testutil.MockOrderRepository
	catalog  *testutil.MockCatalog
	payments *testutil.MockPaymentRepository
	configs  *testutil.MockPaymentConfigRepository
	ledger   *testutil.MockWebhookRepository
	outbox   *testutil.MockOutboxRepository
	tx       *testutil.MockTransactionManager

	mock    *providers.MockProvider
	stub    *stubProvider
	factory *providers.Factory
	metrics *observability.Metrics

	configSvc  *PaymentConfigService
	checkout   *CheckoutService
	orderSvc   *OrderService
	webhookSvc *WebhookService
}

type harnessOption func(*harnessSettings)

type harnessSettings struct {
	checkout CheckoutSettings
	breaker  providers.BreakerSettings
	metrics  *observability.Metrics
}

func withCheckoutSettings(cs CheckoutSettings) harnessOption {
	return func(s *harnessSettings) { s.checkout = cs }
}

func withBreaker(b providers.BreakerSettings) harnessOption {
	return func(s *harnessSettings) { s.breaker = b }
}

func withMetrics(m *observability.Metrics) harnessOption {
	return func(s *harnessSettings) { s.metrics = m }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	settings := harnessSettings{
		checkout: CheckoutSettings{
			ProviderTimeout: time.Second,
			Retry:           retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
			SuccessURL:      "https://shop.example.com/orders/{ORDER_ID}/paid",
			CancelURL:       "https://shop.example.com/orders/{ORDER_ID}",
		},
	}
	for _, o := range opts {
		o(&settings)
	}

	h := &harness{
		tenantID: uuid.New(),
		orders:   testutil.NewMockOrderRepository(),
		catalog:  testutil.NewMockCatalog(),
		payments: testutil.NewMockPaymentRepository(),
		configs:  testutil.NewMockPaymentConfigRepository(),
		ledger:   testutil.NewMockWebhookRepository(),
		outbox:   testutil.NewMockOutboxRepository(),
		mock:     providers.NewMockProvider(providers.WithLatency(0)),
		stub:     &stubProvider{},
		metrics:  settings.metrics,
	}
	h.tx = testutil.NewMockTransactionManager(h.orders, h.payments, h.ledger, h.outbox)
	h.factory = providers.NewFactory(settings.breaker, h.metrics, h.mock, h.stub)

	v, err := vault.New(testMasterKey)
	require.NoError(t, err)

	logger := zerolog.Nop()
	h.configSvc = NewPaymentConfigService(h.configs, v, h.factory)
	h.checkout = NewCheckoutService(h.orders, h.payments, h.outbox, h.tx, h.configSvc, h.factory, settings.checkout, h.metrics, logger)
	h.orderSvc = NewOrderService(h.orders, h.catalog, h.payments, h.outbox, h.tx, h.checkout,
		OrderSettings{DefaultCurrency: "USD", TaxRate: decimal.RequireFromString("0.10")}, h.metrics, logger)
	h.webhookSvc = NewWebhookService(h.payments, h.orders, h.ledger, h.outbox, h.tx, h.configSvc, h.factory, 5*time.Minute, h.metrics, logger)
	return h
}

// configure stores encrypted credentials for provider through the service.
func (h *harness) configure(t *testing.T, provider payment.Provider) {
	t.Helper()
	_, err := h.configSvc.Upsert(context.Background(), UpsertPaymentConfigRequest{
		TenantID:      h.tenantID,
		Provider:      provider,
		SecretKey:     testSecretKey,
		WebhookSecret: testWebhookSecret,
		Active:        true,
	})
	require.NoError(t, err)
}

func (h *harness) addOrder(status order.Status) *order.Order {
	o := testutil.NewTestOrder(h.tenantID, status)
	h.orders.AddOrder(o)
	return o
}

// addPendingPayment stores an order in PAYMENT_PENDING with one mock payment.
func (h *harness) addPendingPayment(orderStatus order.Status, paymentStatus payment.Status) (*order.Order, *payment.Payment) {
	o := h.addOrder(orderStatus)
	p := testutil.NewTestPayment(o, payment.ProviderMock, "mock_cs_"+uuid.NewString())
	p.Status = paymentStatus
	h.payments.AddPayment(p)
	return o, p
}

func (h *harness) deliver(body []byte, secret string) WebhookResult {
	headers := http.Header{}
	headers.Set(providers.MockSignatureHeader, providers.SignMock(body, secret))
	return h.webhookSvc.HandleProviderWebhook(context.Background(), string(payment.ProviderMock), body, headers)
}

func mockEvent(t *testing.T, eventID, sessionID string, status webhook.EventStatus) []byte {
	t.Helper()
	body, err := json.Marshal(providers.MockEvent{
		ID:        eventID,
		Type:      "checkout.session.completed",
		SessionID: sessionID,
		Status:    string(status),
	})
	require.NoError(t, err)
	return body
}

// stubProvider is a scriptable provider for checkout tests.
type stubProvider struct {
	mu       sync.Mutex
	requests []providers.CheckoutRequest
	creds    []providers.Credentials

	// CreateFunc overrides the default success response
	CreateFunc func(ctx context.Context, call int, req providers.CheckoutRequest) (*providers.CheckoutSession, error)
}

func (p *stubProvider) Name() string            { return string(stubProviderName) }
func (p *stubProvider) SignatureHeader() string { return "X-Stub-Signature" }

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, creds providers.Credentials, req providers.CheckoutRequest) (*providers.CheckoutSession, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.creds = append(p.creds, creds)
	call := len(p.requests)
	p.mu.Unlock()

	if p.CreateFunc != nil {
		return p.CreateFunc(ctx, call, req)
	}
	return &providers.CheckoutSession{
		ProviderPaymentID: "stub_cs_" + uuid.NewString(),
		CheckoutURL:       "https://pay.stub.local/" + req.OrderID.String(),
	}, nil
}

func (p *stubProvider) ExtractReference([]byte) (webhook.Reference, error) {
	return webhook.Reference{}, domainErrors.ErrWebhookPayloadInvalid
}

func (p *stubProvider) VerifyWebhook([]byte, string, string) error {
	return domainErrors.ErrWebhookVerificationFailed
}

func (p *stubProvider) NormalizeEvent([]byte) (*webhook.NormalizedEvent, error) {
	return nil, domainErrors.ErrWebhookPayloadInvalid
}

func (p *stubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *stubProvider) Requests() []providers.CheckoutRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]providers.CheckoutRequest(nil), p.requests...)
}
