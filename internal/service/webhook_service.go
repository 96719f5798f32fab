package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/cassiomorais/orders/internal/providers"
	"github.com/rs/zerolog"
)

// Webhook outcomes, used as the metric label and in logs.
const (
	OutcomeProcessed          = "processed"
	OutcomeIgnored            = "ignored"
	OutcomeDuplicate          = "duplicate"
	OutcomeInProgress         = "in_progress"
	OutcomeUnknownPayment     = "unknown_payment"
	OutcomeUnknownProvider    = "unknown_provider"
	OutcomeInvalidPayload     = "invalid_payload"
	OutcomeNoConfig           = "no_config"
	OutcomeVerificationFailed = "verification_failed"
	OutcomeFailed             = "failed"
)

// WebhookResult is what the HTTP layer needs to answer the provider.
// It never carries error detail.
type WebhookResult struct {
	StatusCode   int
	Acknowledged bool
	Outcome      string
}

func ack(outcome string) WebhookResult {
	return WebhookResult{StatusCode: http.StatusOK, Acknowledged: true, Outcome: outcome}
}

func reject(status int, outcome string) WebhookResult {
	return WebhookResult{StatusCode: status, Acknowledged: false, Outcome: outcome}
}

// WebhookService reconciles provider events against payments and orders.
//
// Raw bytes are verified before anything derived from them is trusted; the
// unverified reference is only used to find the tenant's verification key.
type WebhookService struct {
	paymentRepo  payment.Repository
	orderRepo    order.Repository
	ledger       webhook.Repository
	outboxRepo   outbox.Repository
	txManager    TransactionManager
	configs      *PaymentConfigService
	factory      *providers.Factory
	reclaimAfter time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewWebhookService(
	paymentRepo payment.Repository,
	orderRepo order.Repository,
	ledger webhook.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	configs *PaymentConfigService,
	factory *providers.Factory,
	reclaimAfter time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *WebhookService {
	if reclaimAfter <= 0 {
		reclaimAfter = 5 * time.Minute
	}
	return &WebhookService{
		paymentRepo:  paymentRepo,
		orderRepo:    orderRepo,
		ledger:       ledger,
		outboxRepo:   outboxRepo,
		txManager:    txManager,
		configs:      configs,
		factory:      factory,
		reclaimAfter: reclaimAfter,
		metrics:      metrics,
		logger:       logger.With().Str("component", "webhook_service").Logger(),
	}
}

// HandleProviderWebhook runs one delivery through the reconciliation pipeline.
func (s *WebhookService) HandleProviderWebhook(ctx context.Context, providerName string, rawBody []byte, headers http.Header) WebhookResult {
	start := time.Now()
	res := s.handle(ctx, providerName, rawBody, headers)
	s.metrics.WebhookEvent(providerName, res.Outcome, time.Since(start).Seconds())
	return res
}

func (s *WebhookService) handle(ctx context.Context, providerName string, rawBody []byte, headers http.Header) WebhookResult {
	provider, _, err := s.factory.Get(payment.Provider(providerName))
	if err != nil {
		return reject(http.StatusNotFound, OutcomeUnknownProvider)
	}

	log := s.logger.With().Str("provider", providerName).Logger()

	ref, err := provider.ExtractReference(rawBody)
	if err != nil {
		log.Warn().Err(err).Msg("unreadable webhook payload")
		return reject(http.StatusBadRequest, OutcomeInvalidPayload)
	}
	log = log.With().Str("event_id", ref.ProviderEventID).Str("event_type", ref.EventType).Logger()

	if !ref.Relevant {
		log.Debug().Msg("webhook event type ignored")
		return ack(OutcomeIgnored)
	}

	p, err := s.paymentRepo.GetByProviderPaymentID(ctx, payment.Provider(providerName), ref.ProviderPaymentID)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		// Acknowledge: a retry can never resolve an unknown payment.
		log.Warn().Str("provider_payment_id", ref.ProviderPaymentID).Msg("webhook for unknown payment")
		return ack(OutcomeUnknownPayment)
	}
	if err != nil {
		log.Error().Err(err).Msg("payment lookup failed")
		return reject(http.StatusInternalServerError, OutcomeFailed)
	}
	log = log.With().Str("tenant_id", p.TenantID.String()).Str("payment_id", p.ID.String()).Logger()

	existing, err := s.ledger.Get(ctx, providerName, ref.ProviderEventID)
	switch {
	case err == nil && existing.Status.IsHandled():
		log.Info().Msg("duplicate webhook delivery")
		return ack(OutcomeDuplicate)
	case err != nil && !errors.Is(err, domainErrors.ErrWebhookEventNotFound):
		log.Error().Err(err).Msg("ledger lookup failed")
		return reject(http.StatusInternalServerError, OutcomeFailed)
	}

	cfg, err := s.configs.ActiveConfig(ctx, p.TenantID, p.Provider)
	if errors.Is(err, domainErrors.ErrPaymentConfigNotFound) || errors.Is(err, domainErrors.ErrPaymentConfigIncomplete) {
		log.Warn().Msg("no webhook verification key configured")
		return s.recordRejection(ctx, log, providerName, ref, rawBody, webhook.StatusNoConfig,
			reject(http.StatusBadRequest, OutcomeNoConfig))
	}
	if err != nil {
		log.Error().Err(err).Msg("payment config lookup failed")
		return reject(http.StatusInternalServerError, OutcomeFailed)
	}

	secret, err := s.configs.WebhookSecret(cfg)
	if err != nil {
		log.Error().Err(err).Msg("webhook secret unavailable")
		return reject(http.StatusInternalServerError, OutcomeFailed)
	}

	if err := provider.VerifyWebhook(rawBody, headers.Get(provider.SignatureHeader()), secret); err != nil {
		log.Warn().Err(err).Msg("webhook signature verification failed")
		return s.recordRejection(ctx, log, providerName, ref, rawBody, webhook.StatusVerificationFailed,
			reject(http.StatusBadRequest, OutcomeVerificationFailed))
	}

	ev, err := provider.NormalizeEvent(rawBody)
	if err == nil && (ev.ProviderPaymentID != ref.ProviderPaymentID || ev.ProviderEventID != ref.ProviderEventID) {
		err = fmt.Errorf("normalized event does not match its reference: %w", domainErrors.ErrWebhookPayloadInvalid)
	}
	if err != nil {
		log.Warn().Err(err).Msg("verified webhook could not be normalized")
		return s.recordRejection(ctx, log, providerName, ref, rawBody, webhook.StatusFailed,
			reject(http.StatusBadRequest, OutcomeInvalidPayload))
	}

	entry := webhook.NewEntry(providerName, ref, rawBody, webhook.StatusProcessing)
	claimed, err := s.ledger.Claim(ctx, entry, s.reclaimAfter)
	if err != nil {
		log.Error().Err(err).Msg("ledger claim failed")
		return reject(http.StatusInternalServerError, OutcomeFailed)
	}
	if !claimed {
		// Another delivery owns the event or has completed it.
		log.Info().Msg("webhook already being handled")
		return ack(OutcomeInProgress)
	}

	eff, err := s.apply(ctx, entry, p, ev)
	if errors.Is(err, domainErrors.ErrWebhookClaimLost) {
		// A redelivery reclaimed the event while this one was stalled; its
		// effects were rolled back and the new owner finishes the work.
		log.Warn().Int("attempt", entry.Attempts).Msg("webhook claim lost")
		return ack(OutcomeInProgress)
	}
	if err != nil {
		log.Error().Err(err).Int("attempt", entry.Attempts).Msg("webhook processing failed")
		if mfErr := s.ledger.MarkFailed(context.WithoutCancel(ctx), entry, err.Error()); mfErr != nil {
			log.Error().Err(mfErr).Msg("failed to mark webhook event as failed")
		}
		return reject(http.StatusInternalServerError, OutcomeFailed)
	}

	if eff.paymentChanged {
		s.metrics.PaymentStatus(providerName, string(eff.paymentTo))
	}
	if eff.orderFrom != eff.orderTo {
		s.metrics.OrderTransitioned(string(eff.orderFrom), string(eff.orderTo))
	}
	log.Info().
		Str("status", string(ev.Status)).
		Str("order_id", p.OrderID.String()).
		Str("payment_status", string(eff.paymentTo)).
		Str("order_from", string(eff.orderFrom)).
		Str("order_to", string(eff.orderTo)).
		Msg("webhook event processed")

	return ack(OutcomeProcessed)
}

func (s *WebhookService) recordRejection(ctx context.Context, log zerolog.Logger, providerName string, ref webhook.Reference, rawBody []byte, status webhook.Status, res WebhookResult) WebhookResult {
	entry := webhook.NewEntry(providerName, ref, rawBody, status)
	reason := res.Outcome
	entry.LastError = &reason
	if err := s.ledger.Record(ctx, entry); err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("failed to record webhook event")
		return reject(http.StatusInternalServerError, OutcomeFailed)
	}
	return res
}

type effect struct {
	paymentChanged bool
	paymentTo      payment.Status
	orderFrom      order.Status
	orderTo        order.Status
}

var paymentTargets = map[webhook.EventStatus]payment.Status{
	webhook.EventSucceeded: payment.StatusCompleted,
	webhook.EventFailed:    payment.StatusFailed,
	webhook.EventRefunded:  payment.StatusRefunded,
}

var orderTargets = map[webhook.EventStatus]order.Status{
	webhook.EventSucceeded: order.StatusPaid,
	webhook.EventFailed:    order.StatusCancelled,
}

// apply writes the payment and order effects and completes the ledger entry
// in one transaction. Both rows are locked, order first, so a racing
// cancellation or a second event sees the committed status.
func (s *WebhookService) apply(ctx context.Context, claimed *webhook.Entry, ref *payment.Payment, ev *webhook.NormalizedEvent) (effect, error) {
	var eff effect

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		eff = effect{}

		o, err := s.orderRepo.GetForUpdate(txCtx, ref.TenantID, ref.OrderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		p, err := s.paymentRepo.GetForUpdate(txCtx, ref.TenantID, ref.ID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		eff.orderFrom, eff.orderTo = o.Status, o.Status
		eff.paymentTo = p.Status

		target, ok := paymentTargets[ev.Status]
		if ok {
			switch {
			case p.Status == target:
			case p.CanTransitionTo(target):
				if err := p.TransitionTo(target); err != nil {
					return err
				}
				if err := s.paymentRepo.UpdateStatus(txCtx, p); err != nil {
					return fmt.Errorf("update payment status: %w", err)
				}
				eff.paymentChanged = true
				eff.paymentTo = target
			default:
				s.logger.Warn().
					Str("payment_id", p.ID.String()).
					Str("from", string(p.Status)).
					Str("to", string(target)).
					Msg("payment transition skipped")
			}
		}

		// The order only follows a payment that actually reached the event's
		// outcome, and only along a legal edge. Anything else is a no-op.
		orderTarget, ok := orderTargets[ev.Status]
		if ok && orderTarget == order.StatusCancelled {
			live, err := s.isLiveAttempt(txCtx, o, p)
			if err != nil {
				return err
			}
			ok = live
		}
		if ok && p.Status == target && order.IsValidTransition(o.Status, orderTarget) {
			if orderTarget == order.StatusCancelled {
				reason := "payment failed"
				o.CancelReason = &reason
			}
			if err := o.TransitionTo(orderTarget); err != nil {
				return err
			}
			if err := s.orderRepo.UpdateStatus(txCtx, o); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
			if err := s.outboxRepo.Insert(txCtx, outbox.NewOrderStatusChanged(
				o.TenantID, o.ID, string(eff.orderFrom), string(o.Status), "webhook")); err != nil {
				return err
			}
			eff.orderTo = o.Status
		}

		return s.ledger.MarkCompleted(txCtx, claimed)
	})

	return eff, err
}

// isLiveAttempt reports whether a failure of p may cancel o. Only an order
// still waiting for payment qualifies, and only when no other attempt for it
// is pending or already paid. Call it with the order row locked.
func (s *WebhookService) isLiveAttempt(ctx context.Context, o *order.Order, p *payment.Payment) (bool, error) {
	if o.Status != order.StatusCreated && o.Status != order.StatusPaymentPending {
		return false, nil
	}
	attempts, err := s.paymentRepo.ListByOrder(ctx, o.TenantID, o.ID)
	if err != nil {
		return false, fmt.Errorf("list payment attempts: %w", err)
	}
	for _, other := range attempts {
		if other.ID == p.ID {
			continue
		}
		if other.Status == payment.StatusPending || other.Status == payment.StatusCompleted {
			s.logger.Info().
				Str("order_id", o.ID.String()).
				Str("payment_id", p.ID.String()).
				Str("live_payment_id", other.ID.String()).
				Msg("failed attempt superseded, order left as is")
			return false, nil
		}
	}
	return true, nil
}
