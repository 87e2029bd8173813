package status

import (
	"context"
	"fmt"
	"sync"

	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/ports"
	"shiptrack/pkg/platform/sentinel"
)

// numShards spreads per-order serialization over a fixed set of mutexes so
// updates to different orders rarely contend.
const numShards = 128

// InMemoryStore keeps tracking records in process memory. Updates for one
// order id are serialized by its shard lock; the map lock is only held for
// the read and the write, never across the caller's update function.
type InMemoryStore struct {
	shards  [numShards]sync.Mutex
	mu      sync.RWMutex
	records map[string]*models.OrderTrackingRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.OrderTrackingRecord)}
}

func (s *InMemoryStore) Get(_ context.Context, orderID string) (*models.OrderTrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, orderID string, fn ports.UpdateFunc) (*models.OrderTrackingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shard := &s.shards[shardFor(orderID)]
	shard.Lock()
	defer shard.Unlock()

	s.mu.RLock()
	current := s.records[orderID].Clone()
	s.mu.RUnlock()

	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}
	if err := checkAppendOnly(current, next); err != nil {
		return nil, err
	}

	stored := next.Clone()
	stored.OrderID = orderID
	s.mu.Lock()
	s.records[orderID] = stored
	s.mu.Unlock()
	return stored.Clone(), nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// checkAppendOnly rejects a next record whose history drops entries.
func checkAppendOnly(current, next *models.OrderTrackingRecord) error {
	if current == nil {
		return nil
	}
	if len(next.History) < len(current.History) {
		return fmt.Errorf("order %s: history shrank from %d to %d entries", current.OrderID, len(current.History), len(next.History))
	}
	return nil
}

// shardFor hashes orderID with FNV-1a.
func shardFor(orderID string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(orderID); i++ {
		h ^= uint32(orderID[i])
		h *= fnvPrime
	}
	return h % numShards
}
