package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/cassiomorais/orders/internal/testutil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type maintenanceFixture struct {
	store     *testutil.MockIdempotencyStore
	ledger    *testutil.MockWebhookRepository
	outbox    *testutil.MockOutboxRepository
	publisher *testutil.MockPublisher
	metrics   *observability.Metrics
	svc       *MaintenanceService
	now       time.Time
}

func newMaintenanceFixture() *maintenanceFixture {
	f := &maintenanceFixture{
		store:     testutil.NewMockIdempotencyStore(),
		ledger:    testutil.NewMockWebhookRepository(),
		outbox:    testutil.NewMockOutboxRepository(),
		publisher: &testutil.MockPublisher{},
		metrics:   observability.NewMetrics("test", prometheus.NewRegistry()),
		now:       time.Now(),
	}
	tx := testutil.NewMockTransactionManager(f.outbox)
	f.svc = NewMaintenanceService(f.store, f.ledger, f.outbox, f.publisher, tx, f.metrics, zerolog.Nop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *maintenanceFixture) reserve(t *testing.T, tenantID uuid.UUID, key string, expiresAt time.Time) {
	t.Helper()
	_, reserved, err := f.store.Reserve(context.Background(), &idempotency.Record{
		TenantID:  tenantID,
		Key:       key,
		CreatedAt: expiresAt.Add(-time.Hour),
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	require.True(t, reserved)
}

func TestSweepIdempotency_RemovesOnlyExpired(t *testing.T) {
	f := newMaintenanceFixture()
	tenant := uuid.New()
	f.reserve(t, tenant, "old", f.now.Add(-time.Minute))
	f.reserve(t, tenant, "fresh", f.now.Add(time.Minute))

	n, err := f.svc.SweepIdempotency(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Nil(t, f.store.Record(tenant, "old"))
	assert.NotNil(t, f.store.Record(tenant, "fresh"))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.WorkerJobRuns.WithLabelValues(JobIdempotencySweep, "ok")))
}

func TestSweepIdempotency_StoreError(t *testing.T) {
	f := newMaintenanceFixture()
	f.store.PurgeFunc = func(ctx context.Context, now time.Time) (int64, error) {
		return 0, errors.New("connection reset")
	}

	_, err := f.svc.SweepIdempotency(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.WorkerJobRuns.WithLabelValues(JobIdempotencySweep, "error")))
}

func TestPurgeLedger_RespectsRetentionAndProcessing(t *testing.T) {
	f := newMaintenanceFixture()
	old := f.now.Add(-48 * time.Hour)

	add := func(id string, status webhook.Status, updated time.Time) {
		e := webhook.NewEntry("mock", webhook.Reference{ProviderEventID: id, EventType: "checkout.session.completed"}, nil, status)
		e.UpdatedAt = updated
		f.ledger.AddEntry(e)
	}
	add("evt_old_done", webhook.StatusCompleted, old)
	add("evt_old_failed", webhook.StatusFailed, old)
	add("evt_old_stuck", webhook.StatusProcessing, old)
	add("evt_recent", webhook.StatusCompleted, f.now.Add(-time.Hour))

	published := outbox.NewEntry(uuid.New(), outbox.AggregateOrder, uuid.New(), outbox.EventOrderCreated, nil)
	require.NoError(t, f.outbox.Insert(context.Background(), published))
	require.NoError(t, f.outbox.MarkPublished(context.Background(), published.ID))
	pending := outbox.NewEntry(uuid.New(), outbox.AggregateOrder, uuid.New(), outbox.EventOrderCreated, nil)
	require.NoError(t, f.outbox.Insert(context.Background(), pending))

	// Published just now, so push the cutoff past it.
	f.now = f.now.Add(time.Second)
	n, err := f.svc.PurgeLedger(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Nil(t, f.ledger.Entry("mock", "evt_old_done"))
	assert.Nil(t, f.ledger.Entry("mock", "evt_old_failed"))
	assert.NotNil(t, f.ledger.Entry("mock", "evt_old_stuck"))
	assert.NotNil(t, f.ledger.Entry("mock", "evt_recent"))
	assert.Len(t, f.outbox.Entries(), 2)

	n, err = f.svc.PurgeLedger(context.Background(), 0)
	require.NoError(t, err)
	// recent ledger row plus the published outbox row
	assert.Equal(t, int64(2), n)
	require.Len(t, f.outbox.Entries(), 1)
	assert.Equal(t, pending.ID, f.outbox.Entries()[0].ID)
}

func TestRelayOutbox_PublishesPending(t *testing.T) {
	f := newMaintenanceFixture()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.outbox.Insert(context.Background(),
			outbox.NewEntry(uuid.New(), outbox.AggregateOrder, uuid.New(), outbox.EventOrderCreated, map[string]any{"n": i})))
	}

	n, err := f.svc.RelayOutbox(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.RelayOutbox(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Len(t, f.publisher.Published(), 3)
	for _, e := range f.outbox.Entries() {
		assert.Equal(t, outbox.StatusPublished, e.Status)
		assert.NotNil(t, e.PublishedAt)
	}
	assert.Equal(t, 3.0, promtest.ToFloat64(f.metrics.OutboxPublished.WithLabelValues("published")))
}

func TestRelayOutbox_FailedPublishIsRetriedUntilLimit(t *testing.T) {
	f := newMaintenanceFixture()
	entry := outbox.NewEntry(uuid.New(), outbox.AggregateOrder, uuid.New(), outbox.EventOrderCreated, nil)
	entry.MaxRetries = 2
	require.NoError(t, f.outbox.Insert(context.Background(), entry))
	f.publisher.PublishFunc = func(ctx context.Context, e *outbox.Entry) error {
		return errors.New("broker unavailable")
	}

	for i := 0; i < 3; i++ {
		n, err := f.svc.RelayOutbox(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}

	entries := f.outbox.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.StatusFailed, entries[0].Status)
	assert.Equal(t, 2, entries[0].RetryCount)
	assert.Empty(t, f.publisher.Published())
	assert.Equal(t, 2.0, promtest.ToFloat64(f.metrics.OutboxPublished.WithLabelValues("failed")))
}

func TestRelayOutbox_RepositoryErrorRollsBack(t *testing.T) {
	f := newMaintenanceFixture()
	entry := outbox.NewEntry(uuid.New(), outbox.AggregateOrder, uuid.New(), outbox.EventOrderCreated, nil)
	require.NoError(t, f.outbox.Insert(context.Background(), entry))
	f.outbox.MarkPublishedFunc = func(ctx context.Context, id uuid.UUID) error {
		return errors.New("deadlock detected")
	}

	_, err := f.svc.RelayOutbox(context.Background(), 10)

	assert.Error(t, err)
	assert.Equal(t, outbox.StatusPending, f.outbox.Entries()[0].Status)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.WorkerJobRuns.WithLabelValues(JobOutboxRelay, "error")))
}
