package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/cassiomorais/orders/internal/providers"
	"github.com/cassiomorais/orders/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// OrderIDPlaceholder in success/cancel URLs is replaced with the order id.
const OrderIDPlaceholder = "{ORDER_ID}"

type CheckoutSettings struct {
	// ProviderTimeout bounds the whole provider call, retries included
	ProviderTimeout time.Duration
	Retry           retry.Config
	SuccessURL      string
	CancelURL       string
}

// CheckoutService opens provider checkout sessions for orders.
type CheckoutService struct {
	orderRepo   order.Repository
	paymentRepo payment.Repository
	outboxRepo  outbox.Repository
	txManager   TransactionManager
	configs     *PaymentConfigService
	factory     *providers.Factory
	settings    CheckoutSettings
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func NewCheckoutService(
	orderRepo order.Repository,
	paymentRepo payment.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	configs *PaymentConfigService,
	factory *providers.Factory,
	settings CheckoutSettings,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CheckoutService {
	if settings.ProviderTimeout <= 0 {
		settings.ProviderTimeout = 10 * time.Second
	}
	return &CheckoutService{
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		txManager:   txManager,
		configs:     configs,
		factory:     factory,
		settings:    settings,
		metrics:     metrics,
		logger:      logger.With().Str("component", "checkout_service").Logger(),
	}
}

// Supports reports whether a provider adapter is registered for name.
func (s *CheckoutService) Supports(name payment.Provider) bool {
	_, _, err := s.factory.Get(name)
	return err == nil
}

// CreatePaymentIntent opens a checkout session and records the payment attempt.
//
// The provider is called outside any transaction. Only when it succeeds does
// a single transaction re-lock the order, re-check its status, insert the
// payment and move the order to PAYMENT_PENDING. A failed or timed-out call
// leaves the order and payments untouched.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, req CreatePaymentIntentRequest) (*PaymentIntent, error) {
	provider, breaker, err := s.factory.Get(req.Provider)
	if err != nil {
		return nil, domainErrors.NewValidationError("provider", "unsupported payment provider")
	}

	o, err := s.orderRepo.GetByID(ctx, req.TenantID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(o.Status); err != nil {
		return nil, err
	}

	creds, err := s.configs.Credentials(ctx, req.TenantID, req.Provider)
	if err != nil {
		return nil, err
	}

	attemptID := uuid.New()
	idemKey := attemptID.String()
	if req.IdempotencyKey != "" {
		idemKey = req.IdempotencyKey
	}

	session, err := s.openSession(ctx, provider, breaker, creds, providers.CheckoutRequest{
		OrderID:        o.ID,
		TenantID:       o.TenantID,
		AmountCents:    o.TotalCents,
		Currency:       o.Currency,
		Description:    "Order " + o.ID.String(),
		SuccessURL:     expandURL(s.settings.SuccessURL, o.ID),
		CancelURL:      expandURL(s.settings.CancelURL, o.ID),
		IdempotencyKey: "checkout:" + o.ID.String() + ":" + idemKey,
		Metadata:       map[string]string{"payment_attempt_id": attemptID.String()},
	})
	if err != nil {
		return nil, err
	}

	p, err := payment.NewPayment(attemptID, o.TenantID, o.ID, req.Provider, session.ProviderPaymentID, session.CheckoutURL,
		payment.Amount{ValueCents: o.TotalCents, Currency: o.Currency})
	if err != nil {
		return nil, err
	}
	p.Metadata["payment_attempt_id"] = attemptID.String()

	var locked *order.Order
	var from order.Status
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		locked, err = s.orderRepo.GetForUpdate(txCtx, o.TenantID, o.ID)
		if err != nil {
			return err
		}
		// The order may have moved while the provider call was in flight.
		if err := checkPayable(locked.Status); err != nil {
			return err
		}

		if err := s.paymentRepo.Create(txCtx, p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		from = locked.Status
		if locked.Status == order.StatusPaymentPending {
			return nil
		}
		if err := locked.TransitionTo(order.StatusPaymentPending); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateStatus(txCtx, locked); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewOrderStatusChanged(
			locked.TenantID, locked.ID, string(from), string(locked.Status), "checkout"))
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("order_id", o.ID.String()).
			Str("provider_payment_id", session.ProviderPaymentID).
			Msg("checkout session opened but payment not recorded")
		return nil, err
	}

	if from != locked.Status {
		s.metrics.OrderTransitioned(string(from), string(locked.Status))
	}
	s.metrics.PaymentStatus(string(p.Provider), string(p.Status))
	s.logger.Info().
		Str("tenant_id", o.TenantID.String()).
		Str("order_id", o.ID.String()).
		Str("payment_id", p.ID.String()).
		Str("provider", string(p.Provider)).
		Msg("payment intent created")

	locked.Items = o.Items
	return &PaymentIntent{Order: locked, Payment: p, CheckoutURL: session.CheckoutURL}, nil
}

func (s *CheckoutService) openSession(
	ctx context.Context,
	provider providers.Provider,
	breaker *gobreaker.CircuitBreaker[*providers.CheckoutSession],
	creds providers.Credentials,
	req providers.CheckoutRequest,
) (*providers.CheckoutSession, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.settings.ProviderTimeout)
	defer cancel()

	cfg := s.settings.Retry
	cfg.RetryIf = func(err error) bool {
		return domainErrors.IsTransient(err) &&
			!errors.Is(err, gobreaker.ErrOpenState) &&
			!errors.Is(err, gobreaker.ErrTooManyRequests)
	}
	cfg.OnRetry = func(n uint, err error) {
		s.logger.Warn().Err(err).Uint("attempt", n+1).Str("provider", provider.Name()).Msg("retrying checkout session")
	}

	start := time.Now()
	session, err := retry.DoWithResult(callCtx, cfg, func() (*providers.CheckoutSession, error) {
		session, err := breaker.Execute(func() (*providers.CheckoutSession, error) {
			return provider.CreateCheckoutSession(callCtx, creds, req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.metrics.BreakerRequest(provider.Name(), "rejected")
			return nil, fmt.Errorf("%s circuit open: %w: %w", provider.Name(), domainErrors.ErrProviderUnavailable, err)
		}
		return session, err
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if !domainErrors.IsTransient(err) && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%s: %w", provider.Name(), domainErrors.ErrProviderTimeout)
		}
		s.metrics.ProviderCall(provider.Name(), providerResult(err), elapsed)
		return nil, err
	}
	s.metrics.ProviderCall(provider.Name(), "success", elapsed)
	return session, nil
}

func checkPayable(s order.Status) error {
	if s != order.StatusCreated && s != order.StatusPaymentPending {
		return domainErrors.NewInvalidTransitionError(string(s), string(order.StatusPaymentPending))
	}
	return nil
}

func expandURL(tmpl string, orderID uuid.UUID) string {
	return strings.ReplaceAll(tmpl, OrderIDPlaceholder, orderID.String())
}

func providerResult(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, domainErrors.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, domainErrors.ErrProviderRejected):
		return "rejected"
	default:
		return "error"
	}
}
