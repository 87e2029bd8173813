package service

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shiptrack/internal/tracking/carriers"
	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/normalizer"
	"shiptrack/internal/tracking/orchestrator"
	"shiptrack/internal/tracking/ratelimit"
	"shiptrack/internal/tracking/ratelimit/bucket"
	"shiptrack/internal/tracking/reconcile"
	"shiptrack/internal/tracking/registry"
	"shiptrack/internal/tracking/store/status"
	dErrors "shiptrack/pkg/domain-errors"
)

// stubAdapter answers from a fixed table keyed by tracking number.
type stubAdapter struct {
	carrier models.Carrier
	mu      sync.Mutex
	results map[string]*models.RawStatusResult
	errs    map[string]error
}

func newStubAdapter(c models.Carrier) *stubAdapter {
	return &stubAdapter{
		carrier: c,
		results: make(map[string]*models.RawStatusResult),
		errs:    make(map[string]error),
	}
}

func (a *stubAdapter) Carrier() models.Carrier { return a.carrier }

func (a *stubAdapter) Fetch(_ context.Context, tn string) (*models.RawStatusResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.errs[tn]; ok {
		return nil, err
	}
	if res, ok := a.results[tn]; ok {
		cp := *res
		return &cp, nil
	}
	return nil, carriers.ErrTrackingNotFound
}

func (a *stubAdapter) set(tn, raw string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[tn] = &models.RawStatusResult{RawStatus: raw, RawTimestamp: at}
}

func (a *stubAdapter) fail(tn string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[tn] = err
}

type ServiceSuite struct {
	suite.Suite
	amazon     *stubAdapter
	xpressbees *stubAdapter
	queue      *registry.Registry
	store      *status.InMemoryStore
	svc        *Service
	t0         time.Time
	ctx        context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.t0 = time.Date(2025, 2, 10, 8, 30, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	s.amazon = newStubAdapter(models.CarrierAmazon)
	s.xpressbees = newStubAdapter(models.CarrierXpressbees)
	adapters, err := carriers.NewRegistry(s.amazon, s.xpressbees)
	s.Require().NoError(err)

	s.queue = registry.New()
	s.store = status.NewInMemory()
	norm := normalizer.New()
	rec, err := reconcile.New(s.store, norm, reconcile.WithLogger(logger))
	s.Require().NoError(err)

	limits := ratelimit.DefaultLimits()
	limits[models.CarrierXpressbees] = ratelimit.PerMinute(1)
	limiter, err := ratelimit.New(bucket.NewInMemoryBucketStore(), ratelimit.WithLimits(limits))
	s.Require().NoError(err)

	orch, err := orchestrator.New(s.queue, adapters, limiter, norm, rec,
		orchestrator.WithLogger(logger),
		orchestrator.WithEntryTimeout(time.Second),
	)
	s.Require().NoError(err)

	s.svc, err = New(s.queue, s.store, rec, orch,
		WithLogger(logger),
		WithCarrierLookup(adapters, limiter, norm),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestEndToEnd() {
	s.amazon.set("TBA123456789", "Out For Delivery", s.t0)

	s.Run("poll sets out_for_delivery", func() {
		n, err := s.svc.Enroll(s.ctx, []models.EnrollRequest{
			{OrderID: "ORD001", TrackingNumber: "TBA123456789", Carrier: "amazon"},
		})
		s.Require().NoError(err)
		s.Equal(1, n)

		report, err := s.svc.RunCycle(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, report.Updated)

		rec, err := s.svc.GetStatus(s.ctx, "ORD001")
		s.Require().NoError(err)
		s.Equal(models.StatusOutForDelivery, rec.Status)
		s.Equal(models.SourcePoll, rec.Source)
	})

	s.Run("later webhook delivers", func() {
		res, err := s.svc.ApplyWebhook(s.ctx, reconcile.WebhookEvent{
			OrderID:   "ORD001",
			Carrier:   models.CarrierAmazon,
			RawStatus: "Delivered",
			EventTime: s.t0.Add(2 * time.Hour),
		})
		s.Require().NoError(err)
		s.Equal(reconcile.OutcomeApplied, res.Outcome)

		rec, err := s.svc.GetStatus(s.ctx, "ORD001")
		s.Require().NoError(err)
		s.Equal(models.StatusDelivered, rec.Status)
		s.Equal(models.SourceWebhook, rec.Source)
	})

	s.Run("older webhook is discarded", func() {
		before, err := s.svc.GetStatus(s.ctx, "ORD001")
		s.Require().NoError(err)

		res, err := s.svc.ApplyWebhook(s.ctx, reconcile.WebhookEvent{
			OrderID:   "ORD001",
			Carrier:   models.CarrierAmazon,
			RawStatus: "In Transit",
			EventTime: s.t0.Add(-time.Hour),
		})
		s.Require().NoError(err)
		s.Equal(reconcile.OutcomeStale, res.Outcome)
		s.ErrorIs(res.Err(), reconcile.ErrStaleUpdate)

		after, err := s.svc.GetStatus(s.ctx, "ORD001")
		s.Require().NoError(err)
		s.Equal(before, after)
	})
}

func (s *ServiceSuite) TestOneFailureDoesNotBlockOthers() {
	s.amazon.fail("TBA-BAD", carriers.ErrCarrierUnavailable)
	s.amazon.set("TBA-GOOD", "Shipped", s.t0)
	s.xpressbees.set("XB-GOOD", "Picked Up", s.t0)

	_, err := s.svc.Enroll(s.ctx, []models.EnrollRequest{
		{OrderID: "ORD-1", TrackingNumber: "TBA-BAD", Carrier: "amazon"},
		{OrderID: "ORD-2", TrackingNumber: "TBA-GOOD", Carrier: "amazon"},
		{OrderID: "ORD-3", TrackingNumber: "XB-GOOD", Carrier: "xpressbees"},
	})
	s.Require().NoError(err)

	report, err := s.svc.RunCycle(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Updated)
	s.Equal(1, report.Failed)

	for orderID, want := range map[string]models.Status{"ORD-2": models.StatusShipped, "ORD-3": models.StatusShipped} {
		rec, err := s.svc.GetStatus(s.ctx, orderID)
		s.Require().NoError(err)
		s.Equal(want, rec.Status, orderID)
	}
}

func (s *ServiceSuite) TestEnrollValidation() {
	s.Run("unknown carrier rejects the whole batch", func() {
		_, err := s.svc.Enroll(s.ctx, []models.EnrollRequest{
			{OrderID: "ORD-1", TrackingNumber: "T1", Carrier: "amazon"},
			{OrderID: "ORD-2", TrackingNumber: "T2", Carrier: "dhl"},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownCarrier))
		s.Contains(err.Error(), "dhl")
		s.Zero(s.queue.Len())
	})

	s.Run("empty batch", func() {
		_, err := s.svc.Enroll(s.ctx, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("re-enroll keeps one entry", func() {
		_, err := s.svc.Enroll(s.ctx, []models.EnrollRequest{
			{OrderID: "ORD-1", TrackingNumber: "T1", Carrier: "amazon"},
			{OrderID: "ORD-1", TrackingNumber: "T1-NEW", Carrier: "amazon"},
		})
		s.Require().NoError(err)
		entries := s.queue.Drain()
		s.Require().Len(entries, 1)
		s.Equal("T1-NEW", entries[0].TrackingNumber)
	})
}

func (s *ServiceSuite) TestGetStatusNotFound() {
	_, err := s.svc.GetStatus(s.ctx, "ORD-MISSING")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.GetStatus(s.ctx, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestApplyWebhookValidationPassesThrough() {
	_, err := s.svc.ApplyWebhook(s.ctx, reconcile.WebhookEvent{OrderID: "ORD-1", Carrier: models.CarrierShiprocket})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestLookup() {
	s.xpressbees.set("XB1", "Out For Delivery", s.t0)

	s.Run("normalizes without storing", func() {
		res, err := s.svc.Lookup(s.ctx, "XpressBees", "XB1")
		s.Require().NoError(err)
		s.Equal(models.StatusOutForDelivery, res.Status)
		s.Equal("Out For Delivery", res.RawStatus)
		s.Require().NotNil(res.EventTime)
		s.True(res.EventTime.Equal(s.t0))
		s.Zero(s.store.Len())
	})

	s.Run("shares the carrier rate limit", func() {
		_, err := s.svc.Lookup(s.ctx, "xpressbees", "XB1")
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	})

	s.Run("unknown tracking number", func() {
		_, err := s.svc.Lookup(s.ctx, "amazon", "NOPE")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("carrier outage", func() {
		s.amazon.fail("DOWN", carriers.ErrCarrierUnavailable)
		_, err := s.svc.Lookup(s.ctx, "amazon", "DOWN")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("unknown carrier", func() {
		_, err := s.svc.Lookup(s.ctx, "fedex", "X")
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownCarrier))
	})

	s.Run("no adapter for a known carrier", func() {
		_, err := s.svc.Lookup(s.ctx, "shiprocket", "SR1")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

type blockingCycler struct{}

func (blockingCycler) RunCycle(context.Context) (orchestrator.CycleReport, error) {
	return orchestrator.CycleReport{}, orchestrator.ErrCycleInProgress
}

func (s *ServiceSuite) TestRunCycleInProgressIsConflict() {
	svc, err := New(s.queue, s.store, s.svc.webhooks, blockingCycler{})
	s.Require().NoError(err)

	_, err = svc.RunCycle(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.ErrorIs(err, orchestrator.ErrCycleInProgress)
}
