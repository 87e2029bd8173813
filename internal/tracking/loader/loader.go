// Package loader finds orders that still need tracking.
package loader

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lib/pq"

	"shiptrack/internal/tracking/models"
)

// terminalOrderStatuses are order states that no longer need polling.
var terminalOrderStatuses = []string{"delivered", "cancelled", "returned"}

// PostgresLoader reads trackable orders from the orders table.
type PostgresLoader struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresLoader {
	return &PostgresLoader{db: db}
}

// Load returns every order with a tracking id and carrier whose status is
// not terminal. Rows are returned unvalidated; enrollment rejects bad ones.
func (l *PostgresLoader) Load(ctx context.Context) ([]models.EnrollRequest, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT order_id, tracking_id, carrier
		FROM orders
		WHERE tracking_id IS NOT NULL AND tracking_id <> ''
		  AND carrier IS NOT NULL
		  AND LOWER(status) <> ALL($1)
		ORDER BY created_at, order_id
	`, pq.Array(terminalOrderStatuses))
	if err != nil {
		return nil, fmt.Errorf("query trackable orders: %w", err)
	}
	defer rows.Close()

	var reqs []models.EnrollRequest
	for rows.Next() {
		var req models.EnrollRequest
		if err := rows.Scan(&req.OrderID, &req.TrackingNumber, &req.Carrier); err != nil {
			return nil, fmt.Errorf("scan trackable order: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trackable orders: %w", err)
	}
	return reqs, nil
}

// StaticLoader returns a fixed order list on every Load.
type StaticLoader struct {
	reqs []models.EnrollRequest
}

func NewStatic(reqs ...models.EnrollRequest) *StaticLoader {
	return &StaticLoader{reqs: reqs}
}

// LoadStaticFile reads a JSON array of {order_id, tracking_number, carrier}.
func LoadStaticFile(path string) (*StaticLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read static orders file: %w", err)
	}
	var reqs []models.EnrollRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("parse static orders file %s: %w", path, err)
	}
	return NewStatic(reqs...), nil
}

func (l *StaticLoader) Load(context.Context) ([]models.EnrollRequest, error) {
	return append([]models.EnrollRequest(nil), l.reqs...), nil
}
