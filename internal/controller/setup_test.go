package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/cassiomorais/orders/internal/infrastructure/vault"
	"github.com/cassiomorais/orders/internal/middleware"
	"github.com/cassiomorais/orders/internal/providers"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/cassiomorais/orders/internal/testutil"
	"github.com/cassiomorais/orders/pkg/retry"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "controller-test-secret-0123456789abcdef"
	testMasterKey     = "0123456789abcdef0123456789abcdef"
	testWebhookSecret = "whsec_api_test"
)

type apiHarness struct {
	t        *testing.T
	tenantID uuid.UUID

	orders   *testutil.MockOrderRepository
	catalog  *testutil.MockCatalog
	payments *testutil.MockPaymentRepository
	ledger   *testutil.MockWebhookRepository
	store    *testutil.MockIdempotencyStore

	pizza  *order.MenuItem
	ready  error
	router http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	h := &apiHarness{
		t:        t,
		tenantID: uuid.New(),
		orders:   testutil.NewMockOrderRepository(),
		catalog:  testutil.NewMockCatalog(),
		payments: testutil.NewMockPaymentRepository(),
		ledger:   testutil.NewMockWebhookRepository(),
		store:    testutil.NewMockIdempotencyStore(),
	}
	h.pizza = testutil.NewTestMenuItem(h.tenantID, "Margherita", 1250)
	h.catalog.AddMenuItem(h.pizza)

	configs := testutil.NewMockPaymentConfigRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	tx := testutil.NewMockTransactionManager(h.orders, h.payments, h.ledger, outboxRepo)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	factory := providers.NewFactory(providers.BreakerSettings{}, metrics, providers.NewMockProvider(providers.WithLatency(0)))

	v, err := vault.New(testMasterKey)
	require.NoError(t, err)

	logger := zerolog.Nop()
	configSvc := service.NewPaymentConfigService(configs, v, factory)
	checkout := service.NewCheckoutService(h.orders, h.payments, outboxRepo, tx, configSvc, factory, service.CheckoutSettings{
		ProviderTimeout: time.Second,
		Retry:           retry.Config{MaxAttempts: 1},
		SuccessURL:      "https://shop.example.com/orders/{ORDER_ID}/paid",
		CancelURL:       "https://shop.example.com/orders/{ORDER_ID}",
	}, metrics, logger)
	orderSvc := service.NewOrderService(h.orders, h.catalog, h.payments, outboxRepo, tx, checkout,
		service.OrderSettings{DefaultCurrency: "USD", TaxRate: decimal.Zero}, metrics, logger)
	webhookSvc := service.NewWebhookService(h.payments, h.orders, h.ledger, outboxRepo, tx, configSvc, factory, 5*time.Minute, metrics, logger)

	h.router = NewRouter(RouterDeps{
		OrderService:         orderSvc,
		CheckoutService:      checkout,
		WebhookService:       webhookSvc,
		PaymentConfigService: configSvc,
		IdempotencyStore:     h.store,
		IdempotencyTTL:       time.Hour,
		JWTSecret:            testJWTSecret,
		WebhookMaxBodyBytes:  4 << 10,
		ReadinessChecks: []ReadinessCheck{{
			Name:  "database",
			Check: func(ctx context.Context) error { return h.ready },
		}},
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return h
}

func (h *apiHarness) token(role middleware.Role) string {
	h.t.Helper()
	return h.tokenFor(h.tenantID, role)
}

func (h *apiHarness) tokenFor(tenantID uuid.UUID, role middleware.Role) string {
	h.t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		TenantID: tenantID.String(),
		UserID:   "user-" + string(role),
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testJWTSecret))
	require.NoError(h.t, err)
	return token
}

type requestOption func(*http.Request)

func withToken(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withIdempotencyKey(key string) requestOption {
	return func(r *http.Request) { r.Header.Set(middleware.IdempotencyKeyHeader, key) }
}

func withHeader(name, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func (h *apiHarness) do(method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	h.t.Helper()

	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(h.t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// configureMock stores mock provider credentials through the admin endpoint.
func (h *apiHarness) configureMock() {
	h.t.Helper()
	w := h.do(http.MethodPut, "/api/v1/payment-configs/mock", UpsertPaymentConfigRequest{
		SecretKey:     "sk_mock",
		WebhookSecret: testWebhookSecret,
	}, withToken(h.token(middleware.RoleStaff)))
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
}

func (h *apiHarness) addOrder(status order.Status) *order.Order {
	o := testutil.NewTestOrder(h.tenantID, status)
	h.orders.AddOrder(o)
	return o
}

func (h *apiHarness) sendMockWebhook(eventID, sessionID, status, secret string) *httptest.ResponseRecorder {
	h.t.Helper()
	body, err := json.Marshal(providers.MockEvent{
		ID:        eventID,
		Type:      "checkout.session.completed",
		SessionID: sessionID,
		Status:    status,
	})
	require.NoError(h.t, err)
	return h.do(http.MethodPost, "/webhooks/mock", body,
		withHeader(providers.MockSignatureHeader, providers.SignMock(body, secret)))
}
