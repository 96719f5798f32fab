package providers

import (
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	// Threshold is the number of consecutive failures that opens the breaker
	Threshold uint32
	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration
}

type Factory struct {
	settings        BreakerSettings
	metrics         *observability.Metrics
	providers       map[string]Provider
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*CheckoutSession]
}

func NewFactory(settings BreakerSettings, metrics *observability.Metrics, providersList ...Provider) *Factory {
	if settings.Threshold == 0 {
		settings.Threshold = 10
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}

	f := &Factory{
		settings:        settings,
		metrics:         metrics,
		providers:       make(map[string]Provider),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*CheckoutSession]),
	}
	for _, p := range providersList {
		f.Register(p)
	}
	return f
}

// Register is not safe for concurrent use; call it during wiring only.
func (f *Factory) Register(p Provider) {
	f.providers[p.Name()] = p
	f.circuitBreakers[p.Name()] = gobreaker.NewCircuitBreaker[*CheckoutSession](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     f.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= f.settings.Threshold
		},
		// Rejections are the caller's fault and must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !domainErrors.IsTransient(err)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			f.metrics.BreakerState(name, float64(to))
		},
	})
}

func (f *Factory) Get(name payment.Provider) (Provider, *gobreaker.CircuitBreaker[*CheckoutSession], error) {
	p, ok := f.providers[string(name)]
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q: %w", name, domainErrors.ErrProviderNotFound)
	}
	return p, f.circuitBreakers[string(name)], nil
}

// Names lists registered providers.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.providers))
	for n := range f.providers {
		names = append(names, n)
	}
	return names
}
