package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/cassiomorais/orders/internal/infrastructure/config"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/orders/internal/middleware"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	OrderService         *service.OrderService
	CheckoutService      *service.CheckoutService
	WebhookService       *service.WebhookService
	PaymentConfigService *service.PaymentConfigService
	IdempotencyStore     idempotency.Store
	IdempotencyTTL       time.Duration
	JWTSecret            string
	WebhookMaxBodyBytes  int64
	WebhookRateLimit     int
	APIRateLimit         int
	ReadinessChecks      []ReadinessCheck
	Metrics              *observability.Metrics
	// MetricsHandler serves /metrics; nil means promhttp.Handler()
	MetricsHandler http.Handler
	CORSConfig     config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMW.IdempotencyKeyHeader},
		ExposedHeaders:   []string{customMW.IdempotencyReplayedHeader},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.ReadinessChecks...)
	orderH := NewOrderController(deps.OrderService, deps.CheckoutService)
	webhookH := NewWebhookController(deps.WebhookService, deps.WebhookMaxBodyBytes)
	configH := NewPaymentConfigController(deps.PaymentConfigService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	// Provider callbacks authenticate by signature, not by token.
	r.Route("/webhooks", func(r chi.Router) {
		if deps.WebhookRateLimit > 0 {
			r.Use(customMW.RateLimitByPath(deps.WebhookRateLimit))
		}
		r.Post("/{provider}", webhookH.Handle)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if deps.APIRateLimit > 0 {
			r.Use(customMW.RateLimit(deps.APIRateLimit))
		}
		r.Use(customMW.RequireAuth(deps.JWTSecret))

		idempotencyMW := customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL, deps.Metrics)
		staffOnly := customMW.RequireRole(customMW.RoleStaff)

		r.Route("/orders", func(r chi.Router) {
			r.With(idempotencyMW).Post("/", orderH.Create)
			r.With(staffOnly).Get("/", orderH.List)
			r.Get("/{id}", orderH.Get)
			r.With(staffOnly, idempotencyMW).Patch("/{id}/status", orderH.UpdateStatus)
			r.With(idempotencyMW).Post("/{id}/cancel", orderH.Cancel)
			r.With(idempotencyMW).Post("/{id}/payment-intent", orderH.CreatePaymentIntent)
			r.Get("/{id}/payments", orderH.ListPayments)
		})

		r.Route("/payment-configs", func(r chi.Router) {
			r.Use(staffOnly)
			r.Put("/{provider}", configH.Upsert)
			r.Get("/{provider}", configH.Get)
		})
	})

	return r
}
