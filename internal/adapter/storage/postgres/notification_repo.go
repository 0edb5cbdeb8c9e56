package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const notificationColumns = `id, tenant_id, event_id, rule_id, channel, recipient, rendered_payload, status,
		entity_type, entity_id, scheduled_for, next_attempt_at, attempt_count, max_attempts,
		last_attempt_at, last_error, sent_at, dedupe_key, created_at, updated_at`

// NotificationRepo implements ports.NotificationRepository.
type NotificationRepo struct {
	pool Pool
}

// NewNotificationRepo creates a new NotificationRepo.
func NewNotificationRepo(pool Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// Create inserts a scheduled notification. An existing dedupe_key makes it
// a no-op and returns false.
func (r *NotificationRepo) Create(ctx context.Context, tx pgx.Tx, n *domain.Notification) (bool, error) {
	content, err := json.Marshal(n.RenderedPayload)
	if err != nil {
		return false, fmt.Errorf("encode rendered payload: %w", err)
	}

	query := `INSERT INTO notifications (id, tenant_id, event_id, rule_id, channel, recipient, rendered_payload,
		status, entity_type, entity_id, scheduled_for, next_attempt_at, attempt_count, max_attempts,
		dedupe_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (dedupe_key) DO NOTHING`

	tag, err := conn(r.pool, tx).Exec(ctx, query,
		n.ID, n.TenantID, n.EventID, n.RuleID, n.Channel, n.Recipient, content,
		n.Status, n.EntityType, n.EntityID, n.ScheduledFor, n.NextAttemptAt,
		n.AttemptCount, n.MaxAttempts, n.DedupeKey, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID fetches a notification by UUID.
func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// RecoverStuck resets sending rows last attempted before cutoff and makes
// them due immediately. The interrupted send counts toward max_attempts;
// rows left without attempts become failed.
func (r *NotificationRepo) RecoverStuck(ctx context.Context, cutoff, now time.Time, tenantID *uuid.UUID) ([]domain.Notification, error) {
	query := `UPDATE notifications
		SET attempt_count = attempt_count + 1,
			status = CASE WHEN attempt_count + 1 >= max_attempts THEN 'failed' ELSE 'retrying' END,
			next_attempt_at = CASE WHEN attempt_count + 1 >= max_attempts THEN next_attempt_at ELSE $2 END,
			last_error = $4, updated_at = $2
		WHERE status = 'sending' AND last_attempt_at < $1
			AND ($3::uuid IS NULL OR tenant_id = $3)
		RETURNING ` + notificationColumns

	rows, err := r.pool.Query(ctx, query, cutoff, now, tenantID, domain.InterruptedSendError)
	if err != nil {
		return nil, fmt.Errorf("recover stuck notifications: %w", err)
	}
	defer rows.Close()

	var recovered []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		recovered = append(recovered, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recovered rows: %w", err)
	}
	return recovered, nil
}

// ListDue returns claimable notifications whose next attempt is due, oldest first.
func (r *NotificationRepo) ListDue(ctx context.Context, params ports.DueParams) ([]uuid.UUID, error) {
	query := `SELECT id FROM notifications
		WHERE status IN ('scheduled', 'retrying') AND next_attempt_at <= $1
			AND ($3::uuid IS NULL OR tenant_id = $3)
		ORDER BY next_attempt_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, params.Now, params.Limit, params.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due ids: %w", err)
	}
	return ids, nil
}

// Claim moves the given rows to sending with a conditional update. Rows
// already taken by a concurrent dispatcher are not returned.
func (r *NotificationRepo) Claim(ctx context.Context, ids []uuid.UUID, claimedAt time.Time) ([]domain.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `UPDATE notifications
		SET status = 'sending', last_attempt_at = $2, updated_at = $2
		WHERE id = ANY($1) AND status IN ('scheduled', 'retrying')
		RETURNING ` + notificationColumns

	rows, err := r.pool.Query(ctx, query, ids, claimedAt)
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	var claimed []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed rows: %w", err)
	}
	return claimed, nil
}

// Complete writes the outcome of a send while the row is still held by the
// claim made at claimedAt.
func (r *NotificationRepo) Complete(ctx context.Context, n *domain.Notification, claimedAt time.Time) (bool, error) {
	query := `UPDATE notifications
		SET status = $2, attempt_count = $3, next_attempt_at = $4, last_error = $5, sent_at = $6, updated_at = $7
		WHERE id = $1 AND status = 'sending' AND last_attempt_at = $8`

	tag, err := r.pool.Exec(ctx, query,
		n.ID, n.Status, n.AttemptCount, n.NextAttemptAt, n.LastError, n.SentAt, n.UpdatedAt, claimedAt,
	)
	if err != nil {
		return false, fmt.Errorf("complete notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	n := &domain.Notification{}
	var content []byte
	err := row.Scan(
		&n.ID, &n.TenantID, &n.EventID, &n.RuleID, &n.Channel, &n.Recipient, &content, &n.Status,
		&n.EntityType, &n.EntityID, &n.ScheduledFor, &n.NextAttemptAt, &n.AttemptCount, &n.MaxAttempts,
		&n.LastAttemptAt, &n.LastError, &n.SentAt, &n.DedupeKey, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &n.RenderedPayload); err != nil {
			return nil, fmt.Errorf("decode rendered payload %s: %w", n.ID, err)
		}
	}
	return n, nil
}
