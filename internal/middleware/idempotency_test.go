package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/cassiomorais/orders/internal/testutil"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idempotencyFixture struct {
	store    *testutil.MockIdempotencyStore
	metrics  *observability.Metrics
	tenantID uuid.UUID
	calls    atomic.Int64
	status   int
	handler  http.Handler
}

func newIdempotencyFixture() *idempotencyFixture {
	f := &idempotencyFixture{
		store:    testutil.NewMockIdempotencyStore(),
		metrics:  observability.NewMetrics("test", prometheus.NewRegistry()),
		tenantID: uuid.New(),
		status:   http.StatusCreated,
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		w.Write([]byte(`{"call":` + string(rune('0'+n)) + `,"echo":"` + string(body) + `"}`))
	})
	f.handler = Idempotency(f.store, time.Hour, f.metrics)(inner)
	return f
}

func (f *idempotencyFixture) do(tenantID uuid.UUID, key, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	req = req.WithContext(WithPrincipal(req.Context(), Principal{TenantID: tenantID, Role: RoleCustomer}))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysIdenticalResponse(t *testing.T) {
	f := newIdempotencyFixture()

	first := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")
	second := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get(IdempotencyReplayedHeader))
	assert.Empty(t, first.Header().Get(IdempotencyReplayedHeader))
	assert.Equal(t, int64(1), f.calls.Load())

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.IdempotencyRequests.WithLabelValues("stored")))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.IdempotencyRequests.WithLabelValues("replayed")))
}

func TestIdempotency_NewKeyExecutesFresh(t *testing.T) {
	f := newIdempotencyFixture()

	f.do(f.tenantID, "order-1", "/api/v1/orders", "a")
	w := f.do(f.tenantID, "order-2", "/api/v1/orders", "a")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestIdempotency_KeysAreTenantScoped(t *testing.T) {
	f := newIdempotencyFixture()

	f.do(f.tenantID, "shared", "/api/v1/orders", "a")
	w := f.do(uuid.New(), "shared", "/api/v1/orders", "a")

	assert.Empty(t, w.Header().Get(IdempotencyReplayedHeader))
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	f := newIdempotencyFixture()

	f.do(f.tenantID, "", "/api/v1/orders", "a")
	f.do(f.tenantID, "", "/api/v1/orders", "a")

	assert.Equal(t, int64(2), f.calls.Load())
}

func TestIdempotency_MismatchedRequest(t *testing.T) {
	f := newIdempotencyFixture()

	f.do(f.tenantID, "order-1", "/api/v1/orders", "a")
	body := f.do(f.tenantID, "order-1", "/api/v1/orders", "b")
	path := f.do(f.tenantID, "order-1", "/api/v1/orders/x/cancel", "a")

	assert.Equal(t, http.StatusUnprocessableEntity, body.Code)
	assert.Contains(t, body.Body.String(), "idempotency_key_mismatch")
	assert.Equal(t, http.StatusUnprocessableEntity, path.Code)
	assert.Equal(t, int64(1), f.calls.Load())
}

func TestIdempotency_InFlight(t *testing.T) {
	f := newIdempotencyFixture()
	_, reserved, err := f.store.Reserve(context.Background(), &idempotency.Record{
		TenantID:    f.tenantID,
		Key:         "order-1",
		RequestHash: idempotency.Fingerprint(http.MethodPost, "/api/v1/orders", []byte("a")),
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.True(t, reserved)

	w := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_key_in_flight")
	assert.Equal(t, int64(0), f.calls.Load())
}

func TestIdempotency_NonSuccessReleasesKey(t *testing.T) {
	f := newIdempotencyFixture()
	f.status = http.StatusBadRequest

	first := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")
	assert.Equal(t, http.StatusBadRequest, first.Code)
	assert.Nil(t, f.store.Record(f.tenantID, "order-1"))

	f.status = http.StatusCreated
	second := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")

	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Empty(t, second.Header().Get(IdempotencyReplayedHeader))
	assert.Equal(t, int64(2), f.calls.Load())

	stored := f.store.Record(f.tenantID, "order-1")
	require.NotNil(t, stored)
	assert.Equal(t, idempotency.StateCompleted, stored.State)
	assert.Equal(t, http.StatusCreated, stored.ResponseStatus)
}

func TestIdempotency_PanicReleasesKey(t *testing.T) {
	f := newIdempotencyFixture()
	var panicked atomic.Bool
	f.handler = chimw.Recoverer(Idempotency(f.store, time.Hour, f.metrics)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !panicked.Swap(true) {
				panic("kitchen printer offline")
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ok":true}`))
		}),
	))

	first := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")
	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Nil(t, f.store.Record(f.tenantID, "order-1"))

	retry := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")
	assert.Equal(t, http.StatusCreated, retry.Code)
	assert.Empty(t, retry.Header().Get(IdempotencyReplayedHeader))

	stored := f.store.Record(f.tenantID, "order-1")
	require.NotNil(t, stored)
	assert.Equal(t, idempotency.StateCompleted, stored.State)
}

func TestIdempotency_CompleteFailureReleasesKey(t *testing.T) {
	f := newIdempotencyFixture()
	f.store.CompleteFunc = func(ctx context.Context, rec *idempotency.Record) error {
		return errors.New("connection reset")
	}

	first := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Nil(t, f.store.Record(f.tenantID, "order-1"))

	f.store.CompleteFunc = nil
	second := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestIdempotency_InvalidKey(t *testing.T) {
	f := newIdempotencyFixture()

	w := f.do(f.tenantID, "has spaces", "/api/v1/orders", "a")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_key_invalid")
	assert.Equal(t, int64(0), f.calls.Load())
}

func TestIdempotency_StoreFailure(t *testing.T) {
	f := newIdempotencyFixture()
	f.store.ReserveFunc = func(ctx context.Context, rec *idempotency.Record) (*idempotency.Record, bool, error) {
		return nil, false, errors.New("connection refused")
	}

	w := f.do(f.tenantID, "order-1", "/api/v1/orders", "a")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int64(0), f.calls.Load())
}

func TestIdempotency_RequiresPrincipal(t *testing.T) {
	f := newIdempotencyFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("a"))
	req.Header.Set(IdempotencyKeyHeader, "order-1")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
