package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Job names, used for locks and metrics.
const (
	JobIdempotencySweep = "idempotency_sweep"
	JobLedgerRetention  = "ledger_retention"
	JobOutboxRelay      = "outbox_relay"
)

// MaintenanceService runs the periodic background jobs.
type MaintenanceService struct {
	idempotencyStore idempotency.Store
	ledger           webhook.Repository
	outboxRepo       outbox.Repository
	publisher        outbox.Publisher
	txManager        TransactionManager
	metrics          *observability.Metrics
	logger           zerolog.Logger
	now              func() time.Time
}

func NewMaintenanceService(
	idempotencyStore idempotency.Store,
	ledger webhook.Repository,
	outboxRepo outbox.Repository,
	publisher outbox.Publisher,
	txManager TransactionManager,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *MaintenanceService {
	return &MaintenanceService{
		idempotencyStore: idempotencyStore,
		ledger:           ledger,
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		txManager:        txManager,
		metrics:          metrics,
		logger:           logger.With().Str("component", "maintenance").Logger(),
		now:              time.Now,
	}
}

// SweepIdempotency evicts expired idempotency records.
func (s *MaintenanceService) SweepIdempotency(ctx context.Context) (int64, error) {
	n, err := s.idempotencyStore.Purge(ctx, s.now())
	if err != nil {
		s.metrics.JobRun(JobIdempotencySweep, "error", 0)
		return 0, fmt.Errorf("purge idempotency records: %w", err)
	}
	s.metrics.JobRun(JobIdempotencySweep, "ok", n)
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("idempotency records swept")
	}
	return n, nil
}

// PurgeLedger deletes ledger entries and published outbox rows last touched
// before the retention window.
func (s *MaintenanceService) PurgeLedger(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)

	ledgerRows, err := s.ledger.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.metrics.JobRun(JobLedgerRetention, "error", 0)
		return 0, fmt.Errorf("purge webhook ledger: %w", err)
	}
	outboxRows, err := s.outboxRepo.PurgePublished(ctx, cutoff)
	if err != nil {
		s.metrics.JobRun(JobLedgerRetention, "error", ledgerRows)
		return ledgerRows, fmt.Errorf("purge outbox: %w", err)
	}

	total := ledgerRows + outboxRows
	s.metrics.JobRun(JobLedgerRetention, "ok", total)
	if total > 0 {
		s.logger.Info().
			Int64("ledger_deleted", ledgerRows).
			Int64("outbox_deleted", outboxRows).
			Time("cutoff", cutoff).
			Msg("retention purge finished")
	}
	return total, nil
}

// RelayOutbox publishes up to batchSize pending entries. Rows stay locked for
// the duration, so concurrent relays skip them. Delivery is at least once;
// consumers dedupe on event_id.
func (s *MaintenanceService) RelayOutbox(ctx context.Context, batchSize int) (int, error) {
	var published, failed int

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		published, failed = 0, 0

		entries, err := s.outboxRepo.GetPending(txCtx, batchSize)
		if err != nil {
			return fmt.Errorf("get pending outbox entries: %w", err)
		}

		for _, e := range entries {
			if err := s.publisher.Publish(txCtx, e); err != nil {
				s.logger.Warn().Err(err).
					Str("event_id", e.ID.String()).
					Str("event_type", e.EventType).
					Int("retry_count", e.RetryCount).
					Msg("outbox publish failed")
				if err := s.outboxRepo.MarkFailed(txCtx, e.ID); err != nil {
					return fmt.Errorf("mark outbox entry failed: %w", err)
				}
				failed++
				continue
			}
			if err := s.outboxRepo.MarkPublished(txCtx, e.ID); err != nil {
				return fmt.Errorf("mark outbox entry published: %w", err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		s.metrics.JobRun(JobOutboxRelay, "error", 0)
		return 0, err
	}

	s.metrics.Outbox("published", published)
	s.metrics.Outbox("failed", failed)
	s.metrics.JobRun(JobOutboxRelay, "ok", 0)
	return published, nil
}
