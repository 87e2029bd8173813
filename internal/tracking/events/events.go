// Package events publishes tracking status changes for downstream consumers
// such as order notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"shiptrack/internal/tracking/models"
)

const TypeStatusChanged = "tracking.status_changed"

// StatusChanged is emitted when an order's canonical status changes.
// From is empty for the first status an order receives.
type StatusChanged struct {
	EventID        string              `json:"event_id"`
	Type           string              `json:"type"`
	OrderID        string              `json:"order_id"`
	TrackingNumber string              `json:"tracking_number"`
	Carrier        models.Carrier      `json:"carrier"`
	From           models.Status       `json:"from,omitempty"`
	To             models.Status       `json:"to"`
	RawStatus      string              `json:"raw_status"`
	Source         models.UpdateSource `json:"source"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

// NewStatusChanged builds the event for a transition from prev to next.
func NewStatusChanged(prev, next *models.OrderTrackingRecord, raw string) StatusChanged {
	ev := StatusChanged{
		EventID:        uuid.NewString(),
		Type:           TypeStatusChanged,
		OrderID:        next.OrderID,
		TrackingNumber: next.TrackingNumber,
		Carrier:        next.Carrier,
		To:             next.Status,
		RawStatus:      raw,
		Source:         next.Source,
		OccurredAt:     next.LastUpdated,
	}
	if prev != nil {
		ev.From = prev.Status
	}
	return ev
}

type Publisher interface {
	PublishStatusChanged(ctx context.Context, ev StatusChanged) error
}

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes events keyed by order id so one order's events stay
// ordered within a partition.
type KafkaPublisher struct {
	client producer
	topic  string
}

func NewKafkaPublisher(client producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, ev StatusChanged) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.OrderID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.EventID)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s for order %s: %w", ev.Type, ev.OrderID, err)
	}
	return nil
}

// InMemoryPublisher collects events; used when Kafka is not configured and in tests.
type InMemoryPublisher struct {
	mu     sync.Mutex
	events []StatusChanged
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) PublishStatusChanged(_ context.Context, ev StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (p *InMemoryPublisher) Events() []StatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StatusChanged(nil), p.events...)
}

// Fanout delivers each event to every publisher and joins their errors.
// A failing publisher does not stop delivery to the others.
type Fanout []Publisher

func (f Fanout) PublishStatusChanged(ctx context.Context, ev StatusChanged) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishStatusChanged(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
