// Package service is the tracking engine's entry point for transports and the
// scheduler. It turns infrastructure errors into coded domain errors.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"shiptrack/internal/tracking/carriers"
	"shiptrack/internal/tracking/metrics"
	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/orchestrator"
	"shiptrack/internal/tracking/ratelimit"
	"shiptrack/internal/tracking/reconcile"
	dErrors "shiptrack/pkg/domain-errors"
	"shiptrack/pkg/platform/sentinel"
)

type Queue interface {
	Enroll(entry models.QueueEntry)
	Len() int
}

type StatusReader interface {
	Get(ctx context.Context, orderID string) (*models.OrderTrackingRecord, error)
}

type WebhookApplier interface {
	ApplyWebhook(ctx context.Context, ev reconcile.WebhookEvent) (reconcile.Result, error)
}

type Cycler interface {
	RunCycle(ctx context.Context) (orchestrator.CycleReport, error)
}

// LookupResult is a carrier's current answer for one tracking number. It is
// not persisted.
type LookupResult struct {
	Carrier        models.Carrier `json:"carrier"`
	TrackingNumber string         `json:"tracking_number"`
	RawStatus      string         `json:"raw_status"`
	Status         models.Status  `json:"status"`
	EventTime      *time.Time     `json:"event_time,omitempty"`
	Location       string         `json:"location,omitempty"`
}

type Service struct {
	queue    Queue
	store    StatusReader
	webhooks WebhookApplier
	cycles   Cycler

	adapters   orchestrator.AdapterSource
	gate       orchestrator.Gate
	normalizer orchestrator.Normalizer

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCarrierLookup enables Lookup. Lookups share the carriers' rate limits
// with tracking cycles and never wait for a slot.
func WithCarrierLookup(adapters orchestrator.AdapterSource, gate orchestrator.Gate, normalizer orchestrator.Normalizer) Option {
	return func(s *Service) {
		s.adapters = adapters
		s.gate = gate
		s.normalizer = normalizer
	}
}

func New(queue Queue, store StatusReader, webhooks WebhookApplier, cycles Cycler, opts ...Option) (*Service, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if store == nil {
		return nil, errors.New("status store is required")
	}
	if webhooks == nil {
		return nil, errors.New("webhook applier is required")
	}
	if cycles == nil {
		return nil, errors.New("cycle runner is required")
	}
	s := &Service{
		queue:    queue,
		store:    store,
		webhooks: webhooks,
		cycles:   cycles,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enroll queues orders for the next tracking cycle. The batch is validated
// as a whole: if any request is invalid nothing is enrolled.
func (s *Service) Enroll(ctx context.Context, reqs []models.EnrollRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "at least one order is required")
	}
	entries := make([]models.QueueEntry, 0, len(reqs))
	for _, req := range reqs {
		entry, err := models.NewQueueEntry(req)
		if err != nil {
			return 0, err
		}
		entries = append(entries, entry)
	}
	for _, entry := range entries {
		s.queue.Enroll(entry)
	}
	queued := s.queue.Len()
	s.metrics.SetQueuedEntries(queued)
	s.logger.DebugContext(ctx, "orders enrolled for tracking",
		"enrolled", len(entries),
		"queued", queued,
	)
	return len(entries), nil
}

func (s *Service) GetStatus(ctx context.Context, orderID string) (*models.OrderTrackingRecord, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "order_id cannot be empty")
	}
	rec, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "order %s has no tracking status", orderID)
		}
		return nil, s.storeError(ctx, err, "failed to read tracking status")
	}
	return rec, nil
}

// ApplyWebhook applies a pushed carrier event. A stale event is not an
// error; callers inspect Result.Outcome.
func (s *Service) ApplyWebhook(ctx context.Context, ev reconcile.WebhookEvent) (reconcile.Result, error) {
	res, err := s.webhooks.ApplyWebhook(ctx, ev)
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return reconcile.Result{}, err
		}
		return reconcile.Result{}, s.storeError(ctx, err, "failed to apply webhook")
	}
	return res, nil
}

// RunCycle runs one tracking cycle now.
func (s *Service) RunCycle(ctx context.Context) (orchestrator.CycleReport, error) {
	report, err := s.cycles.RunCycle(ctx)
	if err == nil {
		return report, nil
	}
	switch {
	case errors.Is(err, orchestrator.ErrCycleInProgress):
		return report, dErrors.Wrap(err, dErrors.CodeConflict, "a tracking cycle is already running")
	case errors.Is(err, sentinel.ErrUnavailable):
		return report, dErrors.Wrap(err, dErrors.CodeUnavailable, "status store unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return report, dErrors.Wrap(err, dErrors.CodeUnavailable, "tracking cycle cancelled")
	default:
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "tracking cycle failed")
	}
}

// Lookup asks the carrier for the current status of a tracking number
// without touching stored records.
func (s *Service) Lookup(ctx context.Context, carrier, trackingNumber string) (*LookupResult, error) {
	c, err := models.ParseCarrier(carrier)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeUnknownCarrier, "carrier %q is not supported", carrier)
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tracking number cannot be empty")
	}
	if s.adapters == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "carrier lookup is not enabled")
	}
	adapter, ok := s.adapters.Get(c)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "no adapter configured for carrier %s", c)
	}
	if err := s.gate.TryAcquire(ctx, c); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			return nil, dErrors.Newf(dErrors.CodeRateLimited, "%s rate limit reached, retry later", c)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit check failed")
	}

	res, err := adapter.Fetch(ctx, trackingNumber)
	if err != nil {
		if errors.Is(err, carriers.ErrTrackingNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "%s has no tracking events for %s", c, trackingNumber)
		}
		s.logger.WarnContext(ctx, "carrier lookup failed",
			"carrier", c,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "carrier unavailable")
	}

	out := &LookupResult{
		Carrier:        c,
		TrackingNumber: trackingNumber,
		RawStatus:      res.RawStatus,
		Status:         s.normalizer.Normalize(c, res.RawStatus),
		Location:       res.Location,
	}
	if !res.RawTimestamp.IsZero() {
		t := res.RawTimestamp
		out.EventTime = &t
	}
	return out, nil
}

func (s *Service) storeError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "status store unavailable")
	}
	s.logger.ErrorContext(ctx, msg, "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
