// Package orderstatus mirrors canonical tracking status onto the orders
// table so the order loader stops polling orders that reached a terminal
// state.
package orderstatus

import (
	"context"
	"database/sql"
	"fmt"

	"shiptrack/internal/tracking/events"
	"shiptrack/internal/tracking/models"
)

// Store writes an order's status.
type Store interface {
	SetStatus(ctx context.Context, orderID string, status models.Status) error
}

// PostgresStore updates the orders table. Cancelled orders keep their status.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SetStatus(ctx context.Context, orderID string, status models.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2
		WHERE order_id = $1 AND LOWER(status) <> 'cancelled'
	`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("set order %s status: %w", orderID, err)
	}
	return nil
}

// Publisher applies status change events to a Store. It plugs into the
// reconciler next to the Kafka publisher.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) PublishStatusChanged(ctx context.Context, ev events.StatusChanged) error {
	if ev.Type != events.TypeStatusChanged {
		return nil
	}
	return p.store.SetStatus(ctx, ev.OrderID, ev.To)
}
