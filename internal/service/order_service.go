package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderSettings holds pricing defaults applied at creation time.
type OrderSettings struct {
	DefaultCurrency string
	TaxRate         decimal.Decimal
}

// OrderService handles the order lifecycle.
type OrderService struct {
	orderRepo   order.Repository
	catalog     order.Catalog
	paymentRepo payment.Repository
	outboxRepo  outbox.Repository
	txManager   TransactionManager
	checkout    *CheckoutService
	settings    OrderSettings
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewOrderService creates a new OrderService. checkout may be nil, in which
// case orders are created without opening a payment session.
func NewOrderService(
	orderRepo order.Repository,
	catalog order.Catalog,
	paymentRepo payment.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	checkout *CheckoutService,
	settings OrderSettings,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OrderService {
	if settings.DefaultCurrency == "" {
		settings.DefaultCurrency = "USD"
	}
	return &OrderService{
		orderRepo:   orderRepo,
		catalog:     catalog,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		txManager:   txManager,
		checkout:    checkout,
		settings:    settings,
		metrics:     metrics,
		logger:      logger.With().Str("component", "order_service").Logger(),
	}
}

// CreateOrder prices the items from the catalog, freezes the totals and stores
// the order. When a provider is requested a checkout session is opened after
// the order is committed; a provider failure does not fail the order.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, domainErrors.NewValidationError("items", "must contain at least one item")
	}
	if req.Provider != nil && (s.checkout == nil || !s.checkout.Supports(*req.Provider)) {
		return nil, domainErrors.NewValidationError("provider", "unsupported payment provider")
	}

	items, err := s.priceItems(ctx, req.TenantID, req.Items)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.settings.DefaultCurrency
	}

	o, err := order.NewOrder(req.TenantID, items, currency, s.settings.TaxRate, req.Customer, req.Notes)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.orderRepo.Create(txCtx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry(o.TenantID, outbox.AggregateOrder, o.ID, outbox.EventOrderCreated, map[string]any{
			"order_id":    o.ID.String(),
			"tenant_id":   o.TenantID.String(),
			"total_cents": o.TotalCents,
			"currency":    o.Currency,
			"item_count":  len(o.Items),
		}))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.OrderCreated(o.Currency)

	resp := &CreateOrderResponse{Order: o}
	if req.Provider == nil {
		return resp, nil
	}

	intent, err := s.checkout.CreatePaymentIntent(ctx, CreatePaymentIntentRequest{
		TenantID:       o.TenantID,
		OrderID:        o.ID,
		Provider:       *req.Provider,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("tenant_id", o.TenantID.String()).
			Str("order_id", o.ID.String()).
			Str("provider", string(*req.Provider)).
			Msg("order created without payment session")
		resp.PaymentError = PaymentErrorCode(err)
		return resp, nil
	}

	resp.Order = intent.Order
	resp.Payment = intent
	return resp, nil
}

func (s *OrderService) priceItems(ctx context.Context, tenantID uuid.UUID, reqItems []CreateOrderItem) ([]order.Item, error) {
	ids := make([]uuid.UUID, 0, len(reqItems))
	seen := make(map[uuid.UUID]bool, len(reqItems))
	for _, it := range reqItems {
		if it.MenuItemID == uuid.Nil {
			return nil, domainErrors.NewValidationError("menu_item_id", "is required")
		}
		if !seen[it.MenuItemID] {
			seen[it.MenuItemID] = true
			ids = append(ids, it.MenuItemID)
		}
	}

	menu, err := s.catalog.GetMenuItems(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load menu items: %w", err)
	}

	items := make([]order.Item, 0, len(reqItems))
	for _, it := range reqItems {
		mi, ok := menu[it.MenuItemID]
		if !ok {
			return nil, domainErrors.NewValidationError("items", "unknown menu item "+it.MenuItemID.String())
		}
		if !mi.Available {
			return nil, domainErrors.NewValidationError("items", "menu item "+mi.Name+" is not available")
		}
		items = append(items, order.Item{
			MenuItemID:     mi.ID,
			Name:           mi.Name,
			UnitPriceCents: mi.PriceCents,
			Quantity:       it.Quantity,
		})
	}
	return items, nil
}

// GetOrder returns an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*order.Order, error) {
	return s.orderRepo.GetByID(ctx, tenantID, orderID)
}

// ListOrders lists a tenant's orders.
func (s *OrderService) ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.orderRepo.List(ctx, filter)
}

// ListPayments lists payment attempts for an order, newest first.
func (s *OrderService) ListPayments(ctx context.Context, tenantID, orderID uuid.UUID) ([]*payment.Payment, error) {
	if _, err := s.orderRepo.GetByID(ctx, tenantID, orderID); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListByOrder(ctx, tenantID, orderID)
}

// UpdateStatus moves an order along the transition table on behalf of staff.
// The check runs against the locked row, never a snapshot read earlier.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*order.Order, error) {
	if !req.Status.IsValid() {
		return nil, domainErrors.NewValidationError("status", "unknown order status "+string(req.Status))
	}

	return s.mutate(ctx, req.TenantID, req.OrderID, string(order.ActorStaff), func(o *order.Order) error {
		if req.Status == order.StatusCancelled {
			return o.Cancel(order.ActorStaff, "")
		}
		return o.TransitionTo(req.Status)
	})
}

// CancelOrder applies the actor-specific cancellation rule.
func (s *OrderService) CancelOrder(ctx context.Context, req CancelOrderRequest) (*order.Order, error) {
	return s.mutate(ctx, req.TenantID, req.OrderID, string(req.Actor), func(o *order.Order) error {
		return o.Cancel(req.Actor, req.Reason)
	})
}

func (s *OrderService) mutate(ctx context.Context, tenantID, orderID uuid.UUID, source string, apply func(o *order.Order) error) (*order.Order, error) {
	var from, to order.Status

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		o, err := s.orderRepo.GetForUpdate(txCtx, tenantID, orderID)
		if err != nil {
			return err
		}

		from = o.Status
		if err := apply(o); err != nil {
			return err
		}
		to = o.Status

		if err := s.orderRepo.UpdateStatus(txCtx, o); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewOrderStatusChanged(tenantID, orderID, string(from), string(to), source))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransitioned(string(from), string(to))
	s.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("order_id", orderID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("source", source).
		Msg("order status changed")

	return s.orderRepo.GetByID(ctx, tenantID, orderID)
}

// PaymentErrorCode maps a checkout failure onto a stable client-facing code.
// Provider detail never leaves the service.
func PaymentErrorCode(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, domainErrors.ErrProviderRejected):
		return "provider_rejected"
	case errors.Is(err, domainErrors.ErrPaymentConfigNotFound),
		errors.Is(err, domainErrors.ErrPaymentConfigIncomplete):
		return "configuration_error"
	default:
		return "payment_error"
	}
}
