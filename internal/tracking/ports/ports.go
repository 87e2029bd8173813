// Package ports defines the storage interfaces shared by the tracking services.
package ports

import (
	"context"
	"time"

	"shiptrack/internal/tracking/models"
)

// BucketStore manages sliding window rate limit counters.
type BucketStore interface {
	// Allow checks if a single request is allowed and consumes one slot if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// UpdateFunc computes the next record from the current one. current is nil
// when the order has no record yet. Returning a nil record leaves the store
// untouched.
type UpdateFunc func(current *models.OrderTrackingRecord) (*models.OrderTrackingRecord, error)

// StatusStore owns OrderTrackingRecords. Implementations serialize Update
// calls per order id; different orders never block each other.
type StatusStore interface {
	// Get returns a copy of the record or sentinel.ErrNotFound.
	Get(ctx context.Context, orderID string) (*models.OrderTrackingRecord, error)

	// Update runs fn under the order's lock and persists its result atomically.
	Update(ctx context.Context, orderID string, fn UpdateFunc) (*models.OrderTrackingRecord, error)
}
