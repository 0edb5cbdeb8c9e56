package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// completedOrderStatuses are the order states that count as a conversion.
var completedOrderStatuses = []string{"paid", "completed", "fulfilled", "shipped", "delivered"}

// OrderLookup implements ports.OrderLookup against the storefront orders table.
type OrderLookup struct {
	pool Pool
}

// NewOrderLookup creates a new OrderLookup.
func NewOrderLookup(pool Pool) *OrderLookup {
	return &OrderLookup{pool: pool}
}

// HasCompletedOrderSince reports whether the customer placed a completed
// order at or after since. Emails compare case-insensitively.
func (l *OrderLookup) HasCompletedOrderSince(ctx context.Context, tenantID uuid.UUID, email string, since time.Time) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM orders
		WHERE tenant_id = $1 AND lower(customer_email) = lower($2)
			AND status = ANY($3) AND created_at >= $4
	)`

	var exists bool
	err := l.pool.QueryRow(ctx, query, tenantID, email, completedOrderStatuses, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check completed orders: %w", err)
	}
	return exists, nil
}
