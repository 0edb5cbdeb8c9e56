package postgres

import (
	"context"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

type notificationLogRepo struct {
	pool Pool
}

// NewNotificationLogRepository creates a PostgreSQL-backed NotificationLogRepository.
func NewNotificationLogRepository(pool Pool) ports.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

// Upsert writes the reporting row for a notification, last write wins.
func (r *notificationLogRepo) Upsert(ctx context.Context, tx pgx.Tx, log *domain.NotificationLog) error {
	_, err := conn(r.pool, tx).Exec(ctx,
		`INSERT INTO notification_logs
		(notification_id, tenant_id, event_id, rule_id, event_type, channel, recipient, status,
		attempt_count, last_error, scheduled_for, sent_at, order_id, customer_id, checkout_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (notification_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempt_count = EXCLUDED.attempt_count,
			last_error = EXCLUDED.last_error,
			sent_at = EXCLUDED.sent_at,
			event_type = COALESCE(NULLIF(EXCLUDED.event_type, ''), notification_logs.event_type),
			order_id = COALESCE(EXCLUDED.order_id, notification_logs.order_id),
			customer_id = COALESCE(EXCLUDED.customer_id, notification_logs.customer_id),
			checkout_id = COALESCE(EXCLUDED.checkout_id, notification_logs.checkout_id),
			updated_at = EXCLUDED.updated_at`,
		log.NotificationID, log.TenantID, log.EventID, log.RuleID, log.EventType,
		string(log.Channel), log.Recipient, string(log.Status), log.AttemptCount, log.LastError,
		log.ScheduledFor, log.SentAt, log.OrderID, log.CustomerID, log.CheckoutID, log.UpdatedAt,
	)
	return err
}
