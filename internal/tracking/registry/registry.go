// Package registry holds the set of orders queued for the next tracking cycle.
package registry

import (
	"sync"

	"shiptrack/internal/tracking/models"
)

// Registry is an in-memory queue keyed by order id. At most one entry per
// order is queued; re-enrolling replaces the entry in place so drain order
// stays the order of first enrollment.
type Registry struct {
	mu      sync.Mutex
	index   map[string]int
	entries []models.QueueEntry
}

func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Enroll inserts or replaces the queued entry for entry.OrderID.
func (r *Registry) Enroll(entry models.QueueEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[entry.OrderID]; ok {
		r.entries[i] = entry
		return
	}
	r.index[entry.OrderID] = len(r.entries)
	r.entries = append(r.entries, entry)
}

// Drain returns every queued entry in enrollment order and empties the
// registry in the same critical section.
func (r *Registry) Drain() []models.QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	drained := r.entries
	r.entries = nil
	r.index = make(map[string]int)
	return drained
}

// Restore puts back entries a cycle could not process. An order enrolled
// again since the drain keeps its newer entry. Returns how many were restored.
func (r *Registry) Restore(entries []models.QueueEntry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	restored := 0
	for _, e := range entries {
		if _, ok := r.index[e.OrderID]; ok {
			continue
		}
		r.index[e.OrderID] = len(r.entries)
		r.entries = append(r.entries, e)
		restored++
	}
	return restored
}

// Len returns the number of queued orders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
