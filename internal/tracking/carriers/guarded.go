package carriers

import (
	"context"
	"log/slog"
	"time"

	"shiptrack/internal/tracking/metrics"
	"shiptrack/internal/tracking/models"
	"shiptrack/pkg/platform/circuit"
)

// GuardedAdapter puts a circuit breaker in front of an Adapter. Transient
// failures count toward opening the circuit; while it is open Fetch fails
// fast with ErrCarrierUnavailable until the cooldown lets a probe through.
// A not-found answer proves the carrier is up and counts as a success. Calls
// whose context ends before the carrier answers are not counted at all.
type GuardedAdapter struct {
	next    Adapter
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type GuardOption func(*GuardedAdapter)

func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *GuardedAdapter) {
		g.logger = logger
	}
}

func WithGuardMetrics(m *metrics.Metrics) GuardOption {
	return func(g *GuardedAdapter) {
		g.metrics = m
	}
}

func Guard(next Adapter, breaker *circuit.Breaker, opts ...GuardOption) *GuardedAdapter {
	g := &GuardedAdapter{next: next, breaker: breaker, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GuardedAdapter) Carrier() models.Carrier {
	return g.next.Carrier()
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedAdapter) Breaker() *circuit.Breaker {
	return g.breaker
}

func (g *GuardedAdapter) Fetch(ctx context.Context, trackingNumber string) (*models.RawStatusResult, error) {
	carrier := g.Carrier().String()
	if !g.breaker.Allow() {
		return nil, newFetchError(ErrorCircuitOpen, carrier, "circuit open, skipping call", nil)
	}

	start := time.Now()
	res, err := g.next.Fetch(ctx, trackingNumber)
	g.metrics.ObserveFetch(carrier, time.Since(start))

	// Calls cut short by the caller's context are not counted.
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	if err != nil && IsTransient(err) {
		_, change := g.breaker.RecordFailure()
		if change.Opened {
			g.logger.WarnContext(ctx, "carrier circuit opened",
				"carrier", carrier,
				"error", err,
			)
			g.metrics.SetBreakerOpen(carrier, true)
		}
		return nil, err
	}

	_, change := g.breaker.RecordSuccess()
	if change.Closed {
		g.logger.InfoContext(ctx, "carrier circuit closed", "carrier", carrier)
		g.metrics.SetBreakerOpen(carrier, false)
	}
	return res, err
}
