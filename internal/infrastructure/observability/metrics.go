package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Order metrics
	OrdersCreated    *prometheus.CounterVec
	OrderTransitions *prometheus.CounterVec

	// Payment metrics
	PaymentsTotal           *prometheus.CounterVec
	ProviderRequests        *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// Webhook metrics
	WebhookEventsTotal        *prometheus.CounterVec
	WebhookProcessingDuration *prometheus.HistogramVec

	IdempotencyRequests *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Worker metrics
	WorkerJobRuns     *prometheus.CounterVec
	WorkerRowsDeleted *prometheus.CounterVec
	OutboxPublished   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		OrdersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "Total number of orders created by currency",
			},
			[]string{"currency"},
		),
		OrderTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_transitions_total",
				Help:      "Total number of order status transitions",
			},
			[]string{"from", "to"},
		),
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total number of payment status changes by provider and status",
			},
			[]string{"provider", "status"},
		),
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total number of outbound payment provider calls",
			},
			[]string{"provider", "result"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Payment provider call duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Total number of webhook deliveries by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		WebhookProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_processing_duration_seconds",
				Help:      "Webhook processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		IdempotencyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotency_requests_total",
				Help:      "Total number of requests carrying an idempotency key by result",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		WorkerJobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_job_runs_total",
				Help:      "Total number of background job runs",
			},
			[]string{"job", "status"},
		),
		WorkerRowsDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_rows_deleted_total",
				Help:      "Total number of rows removed by cleanup jobs",
			},
			[]string{"job"},
		),
		OutboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Total number of outbox entries relayed",
			},
			[]string{"status"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.OrdersCreated,
		m.OrderTransitions,
		m.PaymentsTotal,
		m.ProviderRequests,
		m.ProviderRequestDuration,
		m.WebhookEventsTotal,
		m.WebhookProcessingDuration,
		m.IdempotencyRequests,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.WorkerJobRuns,
		m.WorkerRowsDeleted,
		m.OutboxPublished,
	)

	return m
}

// The helpers below accept a nil receiver so services can run without metrics in tests.

func (m *Metrics) OrderCreated(currency string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(currency).Inc()
}

func (m *Metrics) OrderTransitioned(from, to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) PaymentStatus(provider, status string) {
	if m == nil {
		return
	}
	m.PaymentsTotal.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) ProviderCall(provider, result string, seconds float64) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, result).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) WebhookEvent(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(provider, outcome).Inc()
	m.WebhookProcessingDuration.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) Idempotency(result string) {
	if m == nil {
		return
	}
	m.IdempotencyRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) BreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) JobRun(job, status string, deleted int64) {
	if m == nil {
		return
	}
	m.WorkerJobRuns.WithLabelValues(job, status).Inc()
	if deleted > 0 {
		m.WorkerRowsDeleted.WithLabelValues(job).Add(float64(deleted))
	}
}

func (m *Metrics) Outbox(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OutboxPublished.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) BreakerRequest(name, result string) {
	if m == nil {
		return
	}
	m.CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
