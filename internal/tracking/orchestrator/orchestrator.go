// Package orchestrator runs tracking cycles: drain the registry, fan out per
// carrier, and push each entry through rate limit, fetch, normalize and
// reconcile.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"shiptrack/internal/tracking/metrics"
	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/ratelimit"
	"shiptrack/internal/tracking/reconcile"
	dErrors "shiptrack/pkg/domain-errors"
	"shiptrack/pkg/platform/sentinel"
	"shiptrack/pkg/requestcontext"
)

// ErrCycleInProgress is returned when RunCycle is called while another cycle runs.
var ErrCycleInProgress = errors.New("tracking cycle already in progress")

// errInterrupted marks an entry cut short by cycle cancellation.
var errInterrupted = errors.New("cycle interrupted")

// DefaultEntryTimeout bounds the fetch and the reconcile of one entry, each
// on its own clock.
const DefaultEntryTimeout = 30 * time.Second

var tracer = otel.Tracer("shiptrack/internal/tracking/orchestrator")

type Orchestrator struct {
	running sync.Mutex

	queue      Queue
	adapters   AdapterSource
	gate       Gate
	normalizer Normalizer
	applier    Applier

	logger       *slog.Logger
	metrics      *metrics.Metrics
	entryTimeout time.Duration
	nonBlocking  bool
	now          func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithEntryTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.entryTimeout = d
		}
	}
}

// WithNonBlocking makes a cycle defer entries whose carrier window is full
// to the next cycle instead of waiting for a slot.
func WithNonBlocking(enabled bool) Option {
	return func(o *Orchestrator) {
		o.nonBlocking = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(queue Queue, adapters AdapterSource, gate Gate, normalizer Normalizer, applier Applier, opts ...Option) (*Orchestrator, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if adapters == nil {
		return nil, errors.New("adapter source is required")
	}
	if gate == nil {
		return nil, errors.New("rate limit gate is required")
	}
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	if applier == nil {
		return nil, errors.New("applier is required")
	}
	o := &Orchestrator{
		queue:        queue,
		adapters:     adapters,
		gate:         gate,
		normalizer:   normalizer,
		applier:      applier,
		logger:       slog.Default(),
		entryTimeout: DefaultEntryTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RunCycle processes every entry queued at call time and returns when all of
// them are done. Per-entry failures are reported, never returned. The error
// is non-nil only when the cycle was cancelled, when the status store became
// unavailable, or with ErrCycleInProgress. Entries that were not processed
// are put back in the queue.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	if !o.running.TryLock() {
		return CycleReport{}, ErrCycleInProgress
	}
	defer o.running.Unlock()

	cycleID := uuid.NewString()
	ctx = requestcontext.WithCycleID(ctx, cycleID)
	ctx, span := tracer.Start(ctx, "tracking.cycle")
	defer span.End()
	span.SetAttributes(attribute.String("cycle_id", cycleID))

	b := &reportBuilder{report: CycleReport{CycleID: cycleID, StartedAt: o.now()}}
	entries := o.queue.Drain()
	b.report.Total = len(entries)

	var runErr error
	if len(entries) > 0 {
		o.logger.InfoContext(ctx, "tracking cycle started",
			"cycle_id", cycleID,
			"entries", len(entries),
		)
		g, gctx := errgroup.WithContext(ctx)
		for _, batch := range groupByCarrier(entries) {
			g.Go(func() error {
				return o.runCarrier(gctx, batch, b)
			})
		}
		runErr = g.Wait()
	}

	b.mu.Lock()
	b.report.FinishedAt = o.now()
	b.mu.Unlock()
	report := b.snapshot()

	result := "completed"
	switch {
	case runErr != nil:
		result = "aborted"
		span.SetStatus(codes.Error, runErr.Error())
		span.RecordError(runErr)
	case ctx.Err() != nil:
		result = "cancelled"
		runErr = ctx.Err()
	}
	o.metrics.RecordCycle(result, report.Duration())
	o.metrics.SetQueuedEntries(o.queue.Len())
	span.SetAttributes(
		attribute.Int("entries", report.Total),
		attribute.Int("updated", report.Updated),
		attribute.Int("failed", report.Failed),
	)

	if report.Total > 0 {
		o.logger.InfoContext(ctx, "tracking cycle finished",
			"cycle_id", cycleID,
			"result", result,
			"total", report.Total,
			"updated", report.Updated,
			"stale", report.Stale,
			"failed", report.Failed,
			"deferred", report.Deferred,
			"abandoned", report.Abandoned,
			"duration", report.Duration(),
		)
	}
	if runErr != nil {
		return report, fmt.Errorf("tracking cycle %s %s: %w", cycleID, result, runErr)
	}
	return report, nil
}

type carrierBatch struct {
	carrier models.Carrier
	entries []models.QueueEntry
}

// groupByCarrier keeps drain order within each carrier.
func groupByCarrier(entries []models.QueueEntry) []carrierBatch {
	idx := make(map[models.Carrier]int)
	var batches []carrierBatch
	for _, e := range entries {
		i, ok := idx[e.Carrier]
		if !ok {
			i = len(batches)
			idx[e.Carrier] = i
			batches = append(batches, carrierBatch{carrier: e.Carrier})
		}
		batches[i].entries = append(batches[i].entries, e)
	}
	return batches
}

// runCarrier processes one carrier's entries in order. It returns an error
// only for structural failures, which cancel the other carriers' workers.
func (o *Orchestrator) runCarrier(ctx context.Context, batch carrierBatch, b *reportBuilder) error {
	for i, entry := range batch.entries {
		if ctx.Err() != nil {
			o.abandon(ctx, batch.entries[i:], b)
			return nil
		}
		err := o.processEntry(ctx, entry, b)
		if err == nil {
			continue
		}
		o.abandon(ctx, batch.entries[i:], b)
		if errors.Is(err, errInterrupted) {
			return nil
		}
		return err
	}
	return nil
}

func (o *Orchestrator) processEntry(ctx context.Context, entry models.QueueEntry, b *reportBuilder) error {
	adapter, ok := o.adapters.Get(entry.Carrier)
	if !ok {
		o.fail(ctx, b, entry, StageDispatch,
			dErrors.Newf(dErrors.CodeUnknownCarrier, "no adapter registered for carrier %q", entry.Carrier))
		return nil
	}

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, o.acquireBudget(entry.Carrier))
	deferred, err := o.acquire(acquireCtx, entry.Carrier)
	cancelAcquire()
	if err != nil {
		return o.entryError(ctx, b, entry, StageRateLimit, err)
	}
	if deferred {
		o.deferEntry(ctx, entry, b)
		return nil
	}

	fetchCtx, cancelFetch := context.WithTimeout(ctx, o.entryTimeout)
	res, err := adapter.Fetch(fetchCtx, entry.TrackingNumber)
	cancelFetch()
	if err != nil {
		return o.entryError(ctx, b, entry, StageFetch, err)
	}

	eventTime := res.RawTimestamp
	if eventTime.IsZero() {
		eventTime = o.now()
	}
	applyCtx, cancelApply := context.WithTimeout(ctx, o.entryTimeout)
	defer cancelApply()
	result, err := o.applier.Apply(applyCtx, models.Update{
		OrderID:        entry.OrderID,
		TrackingNumber: entry.TrackingNumber,
		Carrier:        entry.Carrier,
		RawStatus:      res.RawStatus,
		Status:         o.normalizer.Normalize(entry.Carrier, res.RawStatus),
		EventTime:      eventTime.UTC(),
		Source:         models.SourcePoll,
	})
	if err != nil {
		// A write cut off by its own deadline fails the entry, not the cycle.
		if applyCtx.Err() == nil && errors.Is(err, sentinel.ErrUnavailable) {
			return fmt.Errorf("status store unavailable: %w", err)
		}
		return o.entryError(ctx, b, entry, StageReconcile, err)
	}

	outcome := OutcomeUpdated
	if result.Outcome == reconcile.OutcomeStale {
		outcome = OutcomeStale
	}
	b.record(outcome, 1)
	o.metrics.RecordEntry(entry.Carrier.String(), string(outcome))
	return nil
}

// acquire takes a call slot for c. In non-blocking mode a full window
// reports deferred instead of waiting.
func (o *Orchestrator) acquire(ctx context.Context, c models.Carrier) (deferred bool, err error) {
	if !o.nonBlocking {
		return false, o.gate.Acquire(ctx, c)
	}
	err = o.gate.TryAcquire(ctx, c)
	if errors.Is(err, ratelimit.ErrRateLimited) {
		return true, nil
	}
	return false, err
}

// acquireBudget bounds the wait for a call slot. A sliding window frees a
// slot within one window, so gates that report their limits get a full
// window on top of the entry timeout.
func (o *Orchestrator) acquireBudget(c models.Carrier) time.Duration {
	if lg, ok := o.gate.(limitedGate); ok {
		if limit, ok := lg.Limit(c); ok {
			return limit.Window + o.entryTimeout
		}
	}
	return o.entryTimeout
}

// entryError records a per-entry failure, unless the cycle itself was
// cancelled, in which case the entry is abandoned by the caller.
func (o *Orchestrator) entryError(ctx context.Context, b *reportBuilder, entry models.QueueEntry, stage string, err error) error {
	if ctx.Err() != nil {
		return errInterrupted
	}
	o.fail(ctx, b, entry, stage, err)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, b *reportBuilder, entry models.QueueEntry, stage string, err error) {
	b.fail(EntryFailure{
		OrderID:        entry.OrderID,
		TrackingNumber: entry.TrackingNumber,
		Carrier:        entry.Carrier,
		Stage:          stage,
		Error:          err.Error(),
	})
	o.metrics.RecordEntry(entry.Carrier.String(), string(OutcomeFailed))
	o.logger.WarnContext(ctx, "tracking entry failed",
		"cycle_id", requestcontext.CycleID(ctx),
		"order_id", entry.OrderID,
		"carrier", entry.Carrier,
		"stage", stage,
		"error", err,
	)
}

func (o *Orchestrator) deferEntry(ctx context.Context, entry models.QueueEntry, b *reportBuilder) {
	o.queue.Restore([]models.QueueEntry{entry})
	b.record(OutcomeDeferred, 1)
	o.metrics.RecordEntry(entry.Carrier.String(), string(OutcomeDeferred))
	o.logger.DebugContext(ctx, "tracking entry deferred by rate limit",
		"order_id", entry.OrderID,
		"carrier", entry.Carrier,
	)
}

// abandon re-queues entries the cycle did not get to. An order re-enrolled
// since the drain keeps its newer entry.
func (o *Orchestrator) abandon(ctx context.Context, entries []models.QueueEntry, b *reportBuilder) {
	if len(entries) == 0 {
		return
	}
	restored := o.queue.Restore(entries)
	b.record(OutcomeAbandoned, len(entries))
	for _, e := range entries {
		o.metrics.RecordEntry(e.Carrier.String(), string(OutcomeAbandoned))
	}
	o.logger.WarnContext(ctx, "tracking entries abandoned",
		"cycle_id", requestcontext.CycleID(ctx),
		"carrier", entries[0].Carrier,
		"abandoned", len(entries),
		"requeued", restored,
	)
}
