// Package reconcile merges poll results and webhook pushes into the status
// store. The newest event wins regardless of arrival order.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"shiptrack/internal/tracking/events"
	"shiptrack/internal/tracking/metrics"
	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/ports"
	dErrors "shiptrack/pkg/domain-errors"
	"shiptrack/pkg/requestcontext"
)

// ErrStaleUpdate is what a stale Result reports through Err. Callers that
// only need the outcome can ignore it; it is never a failure.
var ErrStaleUpdate = errors.New("stale update discarded")

var tracer = otel.Tracer("shiptrack/internal/tracking/reconcile")

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeStale   Outcome = "stale"
)

// Result is the outcome of one update. Record is the stored record after the
// call, unchanged when the update was stale.
type Result struct {
	Outcome Outcome
	Record  *models.OrderTrackingRecord
	// Changed is true when the canonical status differs from before.
	Changed bool
}

// Err returns ErrStaleUpdate for stale results and nil otherwise.
func (r Result) Err() error {
	if r.Outcome == OutcomeStale {
		return ErrStaleUpdate
	}
	return nil
}

// Normalizer maps a carrier's raw status onto the canonical enumeration.
type Normalizer interface {
	Normalize(carrier models.Carrier, raw string) models.Status
}

// WebhookEvent is a status push from a carrier. EventTime is zero when the
// carrier did not send one; arrival time is used instead.
type WebhookEvent struct {
	OrderID   string
	Carrier   models.Carrier
	RawStatus string
	EventTime time.Time
	AWB       string
}

type Reconciler struct {
	store      ports.StatusStore
	normalizer Normalizer
	publisher  events.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func(ctx context.Context) time.Time
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithPublisher emits a StatusChanged event whenever an applied update
// changes the canonical status.
func WithPublisher(p events.Publisher) Option {
	return func(r *Reconciler) {
		r.publisher = p
	}
}

// WithClock overrides how arrival time is taken for events without one.
func WithClock(now func(ctx context.Context) time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func New(store ports.StatusStore, normalizer Normalizer, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("status store is required")
	}
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	r := &Reconciler{
		store:      store,
		normalizer: normalizer,
		logger:     slog.Default(),
		now:        requestcontext.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ApplyWebhook normalizes a pushed event and merges it like a poll result.
func (r *Reconciler) ApplyWebhook(ctx context.Context, ev WebhookEvent) (Result, error) {
	orderID := strings.TrimSpace(ev.OrderID)
	if orderID == "" {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "order_id is required")
	}
	if strings.TrimSpace(ev.RawStatus) == "" {
		return Result{}, dErrors.Newf(dErrors.CodeInvalidInput, "order %s: current_status is required", orderID)
	}
	if !ev.Carrier.IsValid() {
		return Result{}, dErrors.Newf(dErrors.CodeUnknownCarrier, "carrier %q is not supported", ev.Carrier)
	}

	eventTime := ev.EventTime
	if eventTime.IsZero() {
		eventTime = r.now(ctx)
	}
	res, err := r.Apply(ctx, models.Update{
		OrderID:        orderID,
		TrackingNumber: strings.TrimSpace(ev.AWB),
		Carrier:        ev.Carrier,
		RawStatus:      ev.RawStatus,
		Status:         r.normalizer.Normalize(ev.Carrier, ev.RawStatus),
		EventTime:      eventTime.UTC(),
		Source:         models.SourceWebhook,
	})
	if err != nil {
		r.metrics.RecordWebhook(ev.Carrier.String(), "error")
		return Result{}, err
	}
	r.metrics.RecordWebhook(ev.Carrier.String(), string(res.Outcome))
	return res, nil
}

// Apply merges u into the order's record atomically. An update older than
// the record's LastUpdated is discarded; equal times apply.
func (r *Reconciler) Apply(ctx context.Context, u models.Update) (Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", u.OrderID),
		attribute.String("carrier", u.Carrier.String()),
		attribute.String("source", string(u.Source)),
	)

	var prev *models.OrderTrackingRecord
	stale := false
	rec, err := r.store.Update(ctx, u.OrderID, func(current *models.OrderTrackingRecord) (*models.OrderTrackingRecord, error) {
		prev, stale = current, false
		next, ok := models.Apply(current, u)
		if !ok {
			stale = true
			return nil, nil
		}
		return next, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return Result{}, fmt.Errorf("reconcile order %s: %w", u.OrderID, err)
	}

	if stale {
		r.metrics.RecordUpdate(string(u.Source), string(OutcomeStale))
		r.logger.InfoContext(ctx, "discarded stale tracking update",
			"order_id", u.OrderID,
			"carrier", u.Carrier,
			"source", u.Source,
			"event_time", u.EventTime,
			"last_updated", rec.LastUpdated,
		)
		span.SetAttributes(attribute.Bool("stale", true))
		return Result{Outcome: OutcomeStale, Record: rec}, nil
	}

	r.metrics.RecordUpdate(string(u.Source), string(OutcomeApplied))
	changed := prev == nil || prev.Status != rec.Status
	if changed {
		r.publish(ctx, prev, rec, u.RawStatus)
	}
	return Result{Outcome: OutcomeApplied, Record: rec, Changed: changed}, nil
}

// publish never fails the update; the record is already committed.
func (r *Reconciler) publish(ctx context.Context, prev, next *models.OrderTrackingRecord, raw string) {
	if r.publisher == nil {
		return
	}
	ev := events.NewStatusChanged(prev, next, raw)
	if err := r.publisher.PublishStatusChanged(ctx, ev); err != nil {
		r.metrics.IncrementEventPublishFailures()
		r.logger.ErrorContext(ctx, "failed to publish status change",
			"order_id", next.OrderID,
			"event_id", ev.EventID,
			"error", err,
		)
	}
}
