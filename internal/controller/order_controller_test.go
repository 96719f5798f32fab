package controller

import (
	"net/http"
	"testing"

	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *apiHarness) createOrderBody(provider string) CreateOrderRequest {
	req := CreateOrderRequest{
		Items:    []OrderItemRequest{{MenuItemID: h.pizza.ID.String(), Quantity: 2}},
		Customer: CustomerRequest{Name: "Ana", Email: "ana@example.com"},
	}
	if provider != "" {
		req.Provider = &provider
	}
	return req
}

func TestCreateOrder_WithoutProvider(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodPost, "/api/v1/orders", h.createOrderBody(""),
		withToken(h.token(middleware.RoleCustomer)))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody[CreateOrderResponse](t, w)
	require.NotNil(t, resp.Order)
	assert.Equal(t, string(order.StatusCreated), resp.Order.Status)
	assert.Equal(t, "25.00", resp.Order.Subtotal)
	assert.Equal(t, "25.00", resp.Order.Total)
	assert.Equal(t, "USD", resp.Order.Currency)
	assert.Nil(t, resp.Payment)
	assert.Empty(t, resp.CheckoutURL)
	assert.Equal(t, 1, h.orders.Count())
}

func TestCreateOrder_PaidThroughWebhook(t *testing.T) {
	h := newAPIHarness(t)
	h.configureMock()
	customer := h.token(middleware.RoleCustomer)

	w := h.do(http.MethodPost, "/api/v1/orders", h.createOrderBody("mock"),
		withToken(customer), withIdempotencyKey("order-paid-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decodeBody[CreateOrderResponse](t, w)
	assert.Equal(t, string(order.StatusPaymentPending), created.Order.Status)
	require.NotNil(t, created.Payment)
	assert.NotEmpty(t, created.CheckoutURL)
	assert.Equal(t, string(payment.StatusPending), created.Payment.Status)

	w = h.sendMockWebhook("evt_paid_1", created.Payment.ProviderPaymentID, "succeeded", testWebhookSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"acknowledged":true}`, w.Body.String())

	w = h.do(http.MethodGet, "/api/v1/orders/"+created.Order.ID, nil, withToken(customer))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(order.StatusPaid), decodeBody[OrderResponse](t, w).Status)

	w = h.do(http.MethodGet, "/api/v1/orders/"+created.Order.ID+"/payments", nil, withToken(customer))
	require.Equal(t, http.StatusOK, w.Code)
	pays := decodeBody[[]PaymentResponse](t, w)
	require.Len(t, pays, 1)
	assert.Equal(t, string(payment.StatusCompleted), pays[0].Status)
	assert.NotNil(t, pays[0].CompletedAt)
}

func TestCreateOrder_ProviderNotConfigured(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodPost, "/api/v1/orders", h.createOrderBody("mock"),
		withToken(h.token(middleware.RoleCustomer)))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody[CreateOrderResponse](t, w)
	assert.Equal(t, string(order.StatusCreated), resp.Order.Status)
	assert.Equal(t, "configuration_error", resp.PaymentError)
	assert.Nil(t, resp.Payment)
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	h := newAPIHarness(t)
	customer := h.token(middleware.RoleCustomer)
	body := h.createOrderBody("")

	first := h.do(http.MethodPost, "/api/v1/orders", body, withToken(customer), withIdempotencyKey("create-abc"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := h.do(http.MethodPost, "/api/v1/orders", body, withToken(customer), withIdempotencyKey("create-abc"))
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.IdempotencyReplayedHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, h.orders.Count())

	body.Notes = "extra cheese"
	third := h.do(http.MethodPost, "/api/v1/orders", body, withToken(customer), withIdempotencyKey("create-abc"))
	assert.Equal(t, http.StatusUnprocessableEntity, third.Code)
	assert.Equal(t, 1, h.orders.Count())
}

func TestCreateOrder_Validation(t *testing.T) {
	h := newAPIHarness(t)
	customer := h.token(middleware.RoleCustomer)

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", []byte(`{"items":`)},
		{"no items", CreateOrderRequest{}},
		{"bad menu item id", CreateOrderRequest{Items: []OrderItemRequest{{MenuItemID: "pizza", Quantity: 1}}}},
		{"quantity too high", CreateOrderRequest{Items: []OrderItemRequest{{MenuItemID: h.pizza.ID.String(), Quantity: 100}}}},
		{"unknown menu item", CreateOrderRequest{Items: []OrderItemRequest{{MenuItemID: uuid.NewString(), Quantity: 1}}}},
		{"bad currency", CreateOrderRequest{Currency: "EURO", Items: []OrderItemRequest{{MenuItemID: h.pizza.ID.String(), Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/api/v1/orders", tt.body, withToken(customer))

			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "validation_error", decodeBody[ErrorResponse](t, w).Code)
		})
	}
	assert.Zero(t, h.orders.Count())
}

func TestOrders_RequireToken(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil, withToken("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetOrder(t *testing.T) {
	h := newAPIHarness(t)
	o := h.addOrder(order.StatusPaid)

	t.Run("own tenant", func(t *testing.T) {
		w := h.do(http.MethodGet, "/api/v1/orders/"+o.ID.String(), nil, withToken(h.token(middleware.RoleCustomer)))
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[OrderResponse](t, w)
		assert.Equal(t, o.ID.String(), resp.ID)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "12.50", resp.Items[0].UnitPrice)
		assert.Equal(t, "25.00", resp.Items[0].LineTotal)
	})

	t.Run("other tenant", func(t *testing.T) {
		w := h.do(http.MethodGet, "/api/v1/orders/"+o.ID.String(), nil,
			withToken(h.tokenFor(uuid.New(), middleware.RoleStaff)))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeBody[ErrorResponse](t, w).Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := h.do(http.MethodGet, "/api/v1/orders/not-a-uuid", nil, withToken(h.token(middleware.RoleCustomer)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListOrders_StaffOnly(t *testing.T) {
	h := newAPIHarness(t)
	h.addOrder(order.StatusPaid)
	h.addOrder(order.StatusAccepted)
	h.orders.AddOrder(newForeignOrder())

	w := h.do(http.MethodGet, "/api/v1/orders", nil, withToken(h.token(middleware.RoleCustomer)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/api/v1/orders", nil, withToken(h.token(middleware.RoleStaff)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]OrderResponse](t, w), 2)

	w = h.do(http.MethodGet, "/api/v1/orders?status=PAID", nil, withToken(h.token(middleware.RoleStaff)))
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]OrderResponse](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, string(order.StatusPaid), list[0].Status)
}

func newForeignOrder() *order.Order {
	o := &order.Order{ID: uuid.New(), TenantID: uuid.New(), Status: order.StatusPaid, Currency: "USD"}
	return o
}

func TestUpdateStatus(t *testing.T) {
	h := newAPIHarness(t)
	staff := h.token(middleware.RoleStaff)
	o := h.addOrder(order.StatusPaid)
	path := "/api/v1/orders/" + o.ID.String() + "/status"

	w := h.do(http.MethodPatch, path, UpdateStatusRequest{Status: "ACCEPTED"}, withToken(h.token(middleware.RoleCustomer)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPatch, path, UpdateStatusRequest{Status: "ACCEPTED"}, withToken(staff))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(order.StatusAccepted), decodeBody[OrderResponse](t, w).Status)

	w = h.do(http.MethodPatch, path, UpdateStatusRequest{Status: "COMPLETED"}, withToken(staff))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state_transition", decodeBody[ErrorResponse](t, w).Code)

	w = h.do(http.MethodPatch, path, UpdateStatusRequest{Status: "COOKING"}, withToken(staff))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, order.StatusAccepted, h.orders.GetOrder(o.ID).Status)
}

func TestCancelOrder_ByRole(t *testing.T) {
	h := newAPIHarness(t)
	o := h.addOrder(order.StatusAccepted)
	path := "/api/v1/orders/" + o.ID.String() + "/cancel"

	w := h.do(http.MethodPost, path, CancelOrderRequest{Reason: "changed my mind"},
		withToken(h.token(middleware.RoleCustomer)))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, order.StatusAccepted, h.orders.GetOrder(o.ID).Status)

	w = h.do(http.MethodPost, path, CancelOrderRequest{Reason: "out of dough"},
		withToken(h.token(middleware.RoleStaff)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[OrderResponse](t, w)
	assert.Equal(t, string(order.StatusCancelled), resp.Status)
	require.NotNil(t, resp.CancelReason)
	assert.Equal(t, "out of dough", *resp.CancelReason)
}

func TestCancelOrder_EmptyBody(t *testing.T) {
	h := newAPIHarness(t)
	o := h.addOrder(order.StatusCreated)

	w := h.do(http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/cancel", nil,
		withToken(h.token(middleware.RoleCustomer)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(order.StatusCancelled), decodeBody[OrderResponse](t, w).Status)
}

func TestCreatePaymentIntent(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newAPIHarness(t)
		o := h.addOrder(order.StatusCreated)

		w := h.do(http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment-intent",
			CreatePaymentIntentRequest{Provider: "mock"}, withToken(h.token(middleware.RoleCustomer)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "configuration_error", decodeBody[ErrorResponse](t, w).Code)
		assert.Zero(t, h.payments.Count())
	})

	t.Run("opens a session", func(t *testing.T) {
		h := newAPIHarness(t)
		h.configureMock()
		o := h.addOrder(order.StatusCreated)

		w := h.do(http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment-intent",
			CreatePaymentIntentRequest{Provider: "mock"}, withToken(h.token(middleware.RoleCustomer)))

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		resp := decodeBody[PaymentIntentResponse](t, w)
		assert.Equal(t, string(order.StatusPaymentPending), resp.Order.Status)
		assert.Equal(t, "25.00", resp.Payment.Amount)
		assert.NotEmpty(t, resp.CheckoutURL)
		assert.Equal(t, 1, h.payments.Count())
	})

	t.Run("paid order", func(t *testing.T) {
		h := newAPIHarness(t)
		h.configureMock()
		o := h.addOrder(order.StatusPaid)

		w := h.do(http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment-intent",
			CreatePaymentIntentRequest{Provider: "mock"}, withToken(h.token(middleware.RoleCustomer)))

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
