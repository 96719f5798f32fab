package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/orders/internal/bootstrap"
	"github.com/cassiomorais/orders/internal/controller"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "orders-api", "orders")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svcs, err := app.Services()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build services")
	}
	app.Logger.Info().Strs("providers", svcs.Providers.Names()).Msg("Payment providers registered")

	cfg := app.Config
	router := controller.NewRouter(controller.RouterDeps{
		OrderService:         svcs.Orders,
		CheckoutService:      svcs.Checkout,
		WebhookService:       svcs.Webhooks,
		PaymentConfigService: svcs.PaymentConfigs,
		IdempotencyStore:     svcs.IdempotencyStore,
		IdempotencyTTL:       cfg.Idempotency.TTL,
		JWTSecret:            cfg.Auth.JWTSecret,
		WebhookMaxBodyBytes:  cfg.Webhook.MaxBodyBytes,
		WebhookRateLimit:     cfg.Webhook.RateLimit,
		APIRateLimit:         cfg.Server.RateLimit,
		ReadinessChecks: []controller.ReadinessCheck{
			{Name: "database", Check: app.Pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }},
		},
		Metrics:    app.Metrics,
		CORSConfig: cfg.Server.CORS,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
