package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/ports"
	"shiptrack/pkg/platform/sentinel"
	"shiptrack/pkg/platform/tx"
)

// PostgresStore persists tracking records and their history in PostgreSQL.
// Update takes a transaction-scoped advisory lock keyed by order id, which
// also covers orders that have no row yet.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (*models.OrderTrackingRecord, error) {
	rec, err := loadRecord(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, sentinel.ErrNotFound
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, orderID string, fn ports.UpdateFunc) (*models.OrderTrackingRecord, error) {
	var result *models.OrderTrackingRecord
	err := tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		if _, err := t.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, orderID); err != nil {
			return fmt.Errorf("lock order %s: %w", orderID, err)
		}

		current, err := loadRecord(ctx, t, orderID)
		if err != nil {
			return err
		}
		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}
		if err := checkAppendOnly(current, next); err != nil {
			return err
		}
		next = next.Clone()
		next.OrderID = orderID
		if err := writeRecord(ctx, t, current, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// writeRecord upserts next and appends the history entries current lacks.
func writeRecord(ctx context.Context, t *sql.Tx, current, next *models.OrderTrackingRecord) error {
	_, err := t.ExecContext(ctx, `
		INSERT INTO tracking_records (order_id, tracking_number, carrier, status, last_updated, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO UPDATE SET
			tracking_number = EXCLUDED.tracking_number,
			carrier = EXCLUDED.carrier,
			status = EXCLUDED.status,
			last_updated = EXCLUDED.last_updated,
			source = EXCLUDED.source
	`, next.OrderID, next.TrackingNumber, string(next.Carrier), string(next.Status), next.LastUpdated.UTC(), string(next.Source))
	if err != nil {
		return fmt.Errorf("upsert tracking record: %w", err)
	}

	seen := 0
	if current != nil {
		seen = len(current.History)
	}
	for i := seen; i < len(next.History); i++ {
		h := next.History[i]
		_, err := t.ExecContext(ctx, `
			INSERT INTO tracking_history (order_id, seq, raw_status, observed_at, source)
			VALUES ($1, $2, $3, $4, $5)
		`, next.OrderID, i, h.RawStatus, h.Timestamp.UTC(), string(h.Source))
		if err != nil {
			return fmt.Errorf("append tracking history: %w", err)
		}
	}
	return nil
}

// loadRecord returns nil, nil when the order has no record.
func loadRecord(ctx context.Context, q queryer, orderID string) (*models.OrderTrackingRecord, error) {
	var rec models.OrderTrackingRecord
	var carrier, status, source string
	err := q.QueryRowContext(ctx, `
		SELECT order_id, tracking_number, carrier, status, last_updated, source
		FROM tracking_records
		WHERE order_id = $1
	`, orderID).Scan(&rec.OrderID, &rec.TrackingNumber, &carrier, &status, &rec.LastUpdated, &source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tracking record: %w", err)
	}
	rec.Carrier = models.Carrier(carrier)
	rec.Status = models.Status(status)
	rec.Source = models.UpdateSource(source)
	rec.LastUpdated = rec.LastUpdated.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT raw_status, observed_at, source
		FROM tracking_history
		WHERE order_id = $1
		ORDER BY seq
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get tracking history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h models.RawStatusEntry
		var src string
		if err := rows.Scan(&h.RawStatus, &h.Timestamp, &src); err != nil {
			return nil, fmt.Errorf("scan tracking history: %w", err)
		}
		h.Timestamp = h.Timestamp.UTC()
		h.Source = models.UpdateSource(src)
		rec.History = append(rec.History, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking history: %w", err)
	}
	return &rec, nil
}
