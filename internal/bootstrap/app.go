package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/infrastructure/config"
	"github.com/cassiomorais/orders/internal/infrastructure/kafka"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/orders/internal/infrastructure/redis"
	"github.com/cassiomorais/orders/internal/infrastructure/vault"
	"github.com/cassiomorais/orders/internal/providers"
	"github.com/cassiomorais/orders/internal/repository/postgres"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/cassiomorais/orders/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, serviceName, os.Stdout)
	logger.Info().Str("instance_id", cfg.InstanceID).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	if cfg.Observability.EnableMetrics {
		app.Metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		app.Pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return app, nil
}

// Close releases connections and flushes pending spans.
func (a *App) Close() {
	if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
		a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
	}
	a.Redis.Close()
	a.Pool.Close()
}

// Services is the application layer wired against PostgreSQL and Redis.
type Services struct {
	TxManager        *postgres.TxManager
	OutboxRepo       *postgres.OutboxRepository
	WebhookLedger    *postgres.WebhookRepository
	IdempotencyStore idempotency.Store
	Providers        *providers.Factory

	Orders         *service.OrderService
	Checkout       *service.CheckoutService
	Webhooks       *service.WebhookService
	PaymentConfigs *service.PaymentConfigService
}

func (a *App) Services() (*Services, error) {
	cfg := a.Config

	v, err := vault.New(cfg.Vault.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	orderRepo := postgres.NewOrderRepository(a.Pool)
	menuRepo := postgres.NewMenuRepository(a.Pool)
	paymentRepo := postgres.NewPaymentRepository(a.Pool)
	configRepo := postgres.NewPaymentConfigRepository(a.Pool)

	s := &Services{
		TxManager:        postgres.NewTxManager(a.Pool),
		OutboxRepo:       postgres.NewOutboxRepository(a.Pool),
		WebhookLedger:    postgres.NewWebhookRepository(a.Pool),
		IdempotencyStore: a.idempotencyStore(),
		Providers:        a.providerFactory(),
	}

	s.PaymentConfigs = service.NewPaymentConfigService(configRepo, v, s.Providers)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Checkout.MaxRetries
	if cfg.Checkout.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.Checkout.RetryDelay
	}

	s.Checkout = service.NewCheckoutService(orderRepo, paymentRepo, s.OutboxRepo, s.TxManager, s.PaymentConfigs, s.Providers,
		service.CheckoutSettings{
			ProviderTimeout: cfg.Checkout.ProviderTimeout,
			Retry:           retryCfg,
			SuccessURL:      cfg.Checkout.SuccessURL,
			CancelURL:       cfg.Checkout.CancelURL,
		}, a.Metrics, a.Logger)

	s.Orders = service.NewOrderService(orderRepo, menuRepo, paymentRepo, s.OutboxRepo, s.TxManager, s.Checkout,
		service.OrderSettings{
			DefaultCurrency: cfg.Checkout.DefaultCurrency,
			TaxRate:         cfg.Checkout.TaxRateDecimal(),
		}, a.Metrics, a.Logger)

	s.Webhooks = service.NewWebhookService(paymentRepo, orderRepo, s.WebhookLedger, s.OutboxRepo, s.TxManager,
		s.PaymentConfigs, s.Providers, cfg.Webhook.ReclaimAfter, a.Metrics, a.Logger)

	return s, nil
}

// Maintenance builds the background job runner around publisher.
func (a *App) Maintenance(s *Services, publisher outbox.Publisher) *service.MaintenanceService {
	return service.NewMaintenanceService(s.IdempotencyStore, s.WebhookLedger, s.OutboxRepo, publisher, s.TxManager, a.Metrics, a.Logger)
}

// Publisher returns the outbox relay target selected by events.backend.
func (a *App) Publisher() outbox.Publisher {
	ev := a.Config.Events
	if ev.Backend == "kafka" {
		a.Logger.Info().Strs("brokers", ev.KafkaBrokers).Str("topic", ev.KafkaTopic).Msg("Publishing events to Kafka")
		return kafka.NewPublisher(ev.KafkaBrokers, ev.KafkaTopic)
	}
	a.Logger.Info().Str("stream", ev.RedisStream).Msg("Publishing events to Redis stream")
	return infraRedis.NewStreamPublisher(a.Redis, ev.RedisStream)
}

func (a *App) idempotencyStore() idempotency.Store {
	if a.Config.Idempotency.Store == "redis" {
		return infraRedis.NewIdempotencyStore(a.Redis)
	}
	return postgres.NewIdempotencyRepository(a.Pool)
}

func (a *App) providerFactory() *providers.Factory {
	f := providers.NewFactory(providers.BreakerSettings{
		Threshold: a.Config.Checkout.CircuitBreakerThreshold,
		Timeout:   a.Config.Checkout.CircuitBreakerTimeout,
	}, a.Metrics, providers.NewStripeProvider())

	if a.Config.Checkout.EnableMockProvider {
		f.Register(providers.NewMockProvider())
		a.Logger.Warn().Msg("Mock payment provider enabled")
	}
	return f
}
