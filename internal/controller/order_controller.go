package controller

import (
	"net/http"
	"strconv"

	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/middleware"
	"github.com/cassiomorais/orders/internal/service"
	"github.com/google/uuid"
)

// OrderController handles order-related HTTP requests.
type OrderController struct {
	orderService    *service.OrderService
	checkoutService *service.CheckoutService
}

// NewOrderController creates a new OrderController.
func NewOrderController(orderService *service.OrderService, checkoutService *service.CheckoutService) *OrderController {
	return &OrderController{
		orderService:    orderService,
		checkoutService: checkoutService,
	}
}

// Create handles POST /api/v1/orders
func (h *OrderController) Create(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	items := make([]service.CreateOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		// validate:"uuid" already guarantees this parses
		id, _ := uuid.Parse(it.MenuItemID)
		items = append(items, service.CreateOrderItem{MenuItemID: id, Quantity: it.Quantity})
	}

	var provider *payment.Provider
	if req.Provider != nil {
		p := payment.Provider(*req.Provider)
		provider = &p
	}

	resp, err := h.orderService.CreateOrder(r.Context(), service.CreateOrderRequest{
		TenantID: principal.TenantID,
		Items:    items,
		Currency: req.Currency,
		Customer: order.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Notes:          req.Notes,
		Provider:       provider,
		IdempotencyKey: r.Header.Get(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromCreateOrder(resp))
}

// List handles GET /api/v1/orders
func (h *OrderController) List(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	filter := order.ListFilter{
		TenantID:  principal.TenantID,
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	if s := q.Get("status"); s != "" {
		status, err := order.ParseStatus(s)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Status = &status
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	orders, err := h.orderService.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, FromOrder(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/orders/{id}
func (h *OrderController) Get(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := h.orderService.GetOrder(r.Context(), principal.TenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o))
}

// UpdateStatus handles PATCH /api/v1/orders/{id}/status
func (h *OrderController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := h.orderService.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		TenantID: principal.TenantID,
		OrderID:  id,
		Status:   status,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o))
}

// Cancel handles POST /api/v1/orders/{id}/cancel. The cancellation rule
// applied depends on the caller's role.
func (h *OrderController) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req CancelOrderRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor := order.ActorCustomer
	if principal.IsStaff() {
		actor = order.ActorStaff
	}

	o, err := h.orderService.CancelOrder(r.Context(), service.CancelOrderRequest{
		TenantID: principal.TenantID,
		OrderID:  id,
		Actor:    actor,
		Reason:   req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o))
}

// CreatePaymentIntent handles POST /api/v1/orders/{id}/payment-intent
func (h *OrderController) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreatePaymentIntentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	intent, err := h.checkoutService.CreatePaymentIntent(r.Context(), service.CreatePaymentIntentRequest{
		TenantID:       principal.TenantID,
		OrderID:        id,
		Provider:       payment.Provider(req.Provider),
		IdempotencyKey: r.Header.Get(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(w, err, checkoutErrorMappings...)
		return
	}

	writeJSON(w, http.StatusCreated, FromPaymentIntent(intent))
}

// ListPayments handles GET /api/v1/orders/{id}/payments
func (h *OrderController) ListPayments(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	payments, err := h.orderService.ListPayments(r.Context(), principal.TenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}
