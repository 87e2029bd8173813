// Package ratelimit gates outbound carrier calls with a per-carrier sliding
// window so a tracking cycle never exceeds a carrier's published quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shiptrack/internal/tracking/metrics"
	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/ports"
	dErrors "shiptrack/pkg/domain-errors"
)

// ErrRateLimited is returned by TryAcquire when the carrier's window is full.
var ErrRateLimited = errors.New("carrier rate limit reached")

// minBackoff keeps a waiter from spinning when ResetAt is already in the past
// because of clock skew between instances sharing a Redis window.
const minBackoff = 5 * time.Millisecond

type BucketStore = ports.BucketStore

// Limit is the number of calls allowed in any rolling Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// PerMinute is a Limit of n calls per rolling minute.
func PerMinute(n int) Limit {
	return Limit{Requests: n, Window: time.Minute}
}

type Limits map[models.Carrier]Limit

// DefaultLimits are the carriers' published per-minute quotas.
func DefaultLimits() Limits {
	return Limits{
		models.CarrierAmazon:     PerMinute(30),
		models.CarrierXpressbees: PerMinute(60),
		models.CarrierShiprocket: PerMinute(100),
	}
}

// Limiter hands out call slots per carrier. It is safe for concurrent use;
// the bucket store is the single point of admission.
type Limiter struct {
	buckets BucketStore
	limits  Limits
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithLimits overrides the limits of the carriers present in limits.
func WithLimits(limits Limits) Option {
	return func(l *Limiter) {
		for carrier, limit := range limits {
			l.limits[carrier] = limit
		}
	}
}

func New(buckets BucketStore, opts ...Option) (*Limiter, error) {
	if buckets == nil {
		return nil, errors.New("bucket store is required")
	}
	l := &Limiter{
		buckets: buckets,
		limits:  DefaultLimits(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	for carrier, limit := range l.limits {
		if limit.Requests <= 0 || limit.Window <= 0 {
			return nil, fmt.Errorf("invalid rate limit for %s: %d per %s", carrier, limit.Requests, limit.Window)
		}
	}
	return l, nil
}

// Limit returns the configured limit for carrier.
func (l *Limiter) Limit(carrier models.Carrier) (Limit, bool) {
	limit, ok := l.limits[carrier]
	return limit, ok
}

// Acquire blocks until a slot for carrier is granted or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, carrier models.Carrier) error {
	limit, err := l.limitFor(carrier)
	if err != nil {
		return err
	}
	start := time.Now()
	for {
		res, err := l.buckets.Allow(ctx, bucketKey(carrier), limit.Requests, limit.Window)
		if err != nil {
			return fmt.Errorf("rate limit check for %s: %w", carrier, err)
		}
		if res.Allowed {
			l.metrics.ObserveRateLimitWait(carrier.String(), time.Since(start))
			return nil
		}

		wait := max(time.Until(res.ResetAt), minBackoff)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.WarnContext(ctx, "gave up waiting for carrier rate limit slot",
				"carrier", carrier,
				"waited", time.Since(start),
			)
			return fmt.Errorf("waiting for %s rate limit slot: %w", carrier, ctx.Err())
		case <-timer.C:
		}
	}
}

// TryAcquire takes a slot for carrier if one is free and returns
// ErrRateLimited otherwise.
func (l *Limiter) TryAcquire(ctx context.Context, carrier models.Carrier) error {
	limit, err := l.limitFor(carrier)
	if err != nil {
		return err
	}
	res, err := l.buckets.Allow(ctx, bucketKey(carrier), limit.Requests, limit.Window)
	if err != nil {
		return fmt.Errorf("rate limit check for %s: %w", carrier, err)
	}
	if !res.Allowed {
		l.metrics.IncrementRateLimitDenied(carrier.String())
		return ErrRateLimited
	}
	return nil
}

// limitFor denies carriers without a configured limit rather than letting
// them through unthrottled.
func (l *Limiter) limitFor(carrier models.Carrier) (Limit, error) {
	limit, ok := l.limits[carrier]
	if !ok {
		return Limit{}, dErrors.Newf(dErrors.CodeUnknownCarrier, "no rate limit configured for carrier %q", carrier)
	}
	return limit, nil
}

func bucketKey(carrier models.Carrier) string {
	return "carrier:" + carrier.String()
}
