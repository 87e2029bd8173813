// Package scheduler triggers tracking cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/orchestrator"
)

// Loader lists orders that should be tracked on the next cycle.
type Loader interface {
	Load(ctx context.Context) ([]models.EnrollRequest, error)
}

// Engine is the part of the tracking service the scheduler drives.
type Engine interface {
	Enroll(ctx context.Context, reqs []models.EnrollRequest) (int, error)
	RunCycle(ctx context.Context) (orchestrator.CycleReport, error)
}

type Scheduler struct {
	loader   Loader
	engine   Engine
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithLoader enrolls the loader's orders before every cycle.
func WithLoader(loader Loader) Option {
	return func(s *Scheduler) {
		s.loader = loader
	}
}

func New(engine Engine, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	s := &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run ticks once immediately and then every interval until ctx is done.
// Tick errors are logged; Run only returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "tracking scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "scheduled tracking cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "tracking scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick enrolls loaded orders and runs one cycle. A cycle that is already
// running (started manually) makes this tick a no-op.
func (s *Scheduler) Tick(ctx context.Context) (orchestrator.CycleReport, error) {
	s.enrollLoaded(ctx)

	report, err := s.engine.RunCycle(ctx)
	if errors.Is(err, orchestrator.ErrCycleInProgress) {
		s.logger.InfoContext(ctx, "tracking cycle already running, skipping tick")
		return report, nil
	}
	return report, err
}

// enrollLoaded enrolls orders one by one so a bad row only skips itself.
func (s *Scheduler) enrollLoaded(ctx context.Context) {
	if s.loader == nil {
		return
	}
	reqs, err := s.loader.Load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load trackable orders", "error", err)
		return
	}
	enrolled, skipped := 0, 0
	for _, req := range reqs {
		if _, err := s.engine.Enroll(ctx, []models.EnrollRequest{req}); err != nil {
			skipped++
			s.logger.WarnContext(ctx, "skipping order that cannot be tracked",
				"order_id", req.OrderID,
				"carrier", req.Carrier,
				"error", err,
			)
			continue
		}
		enrolled++
	}
	s.logger.InfoContext(ctx, "loaded orders for tracking",
		"enrolled", enrolled,
		"skipped", skipped,
	)
}
