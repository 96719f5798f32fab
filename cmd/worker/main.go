package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/orders/internal/bootstrap"
	infraRedis "github.com/cassiomorais/orders/internal/infrastructure/redis"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "orders-worker", "orders_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svcs, err := app.Services()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build services")
	}

	publisher := app.Publisher()
	defer publisher.Close()

	maintenance := app.Maintenance(svcs, publisher)
	cfg := app.Config
	locker := infraRedis.NewLocker(app.Redis, cfg.Worker.LockTTL)

	jobs := []job{
		{
			name:     service.JobOutboxRelay,
			interval: cfg.Worker.OutboxPollInterval,
			run: func(ctx context.Context) error {
				_, err := maintenance.RelayOutbox(ctx, cfg.Worker.BatchSize)
				return err
			},
		},
		{
			name:     service.JobIdempotencySweep,
			interval: cfg.Idempotency.SweepInterval,
			run: func(ctx context.Context) error {
				_, err := maintenance.SweepIdempotency(ctx)
				return err
			},
		},
		{
			name:     service.JobLedgerRetention,
			interval: cfg.Webhook.RetentionInterval,
			run: func(ctx context.Context) error {
				_, err := maintenance.PurgeLedger(ctx, cfg.Webhook.Retention)
				return err
			},
		},
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			return runJob(gCtx, app.Logger, locker, j)
		})
	}

	app.Logger.Info().Str("instance_id", cfg.InstanceID).Int("jobs", len(jobs)).Msg("Worker started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// runJob ticks until ctx is done. Each tick runs under a Redis lease so one
// instance at a time does the work; failures are logged and retried on the
// next tick.
func runJob(ctx context.Context, logger zerolog.Logger, locker *infraRedis.Locker, j job) error {
	if j.interval <= 0 {
		logger.Warn().Str("job", j.name).Msg("Job disabled, no interval configured")
		return nil
	}

	log := logger.With().Str("job", j.name).Logger()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		ran, err := locker.Run(ctx, "job:"+j.name, j.run)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error().Err(err).Msg("Job run failed")
		case !ran:
			log.Debug().Msg("Job lease held elsewhere, skipping")
		}
	}
}
