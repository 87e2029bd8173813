package orchestrator

import (
	"context"

	"shiptrack/internal/tracking/carriers"
	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/ratelimit"
	"shiptrack/internal/tracking/reconcile"
)

// Queue is the tracking registry as seen by a cycle.
type Queue interface {
	Drain() []models.QueueEntry
	Restore(entries []models.QueueEntry) int
	Len() int
}

// AdapterSource resolves the adapter for a carrier.
type AdapterSource interface {
	Get(c models.Carrier) (carriers.Adapter, bool)
}

// Gate hands out per-carrier call slots.
type Gate interface {
	Acquire(ctx context.Context, c models.Carrier) error
	TryAcquire(ctx context.Context, c models.Carrier) error
}

// limitedGate is a Gate that reports its per-carrier limits.
type limitedGate interface {
	Limit(c models.Carrier) (ratelimit.Limit, bool)
}

type Normalizer interface {
	Normalize(c models.Carrier, raw string) models.Status
}

type Applier interface {
	Apply(ctx context.Context, u models.Update) (reconcile.Result, error)
}
