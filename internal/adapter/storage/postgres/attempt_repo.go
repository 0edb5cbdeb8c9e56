package postgres

import (
	"context"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"

	"github.com/google/uuid"
)

type attemptRepo struct {
	pool Pool
}

// NewAttemptRepository creates a PostgreSQL-backed AttemptRepository.
func NewAttemptRepository(pool Pool) ports.AttemptRepository {
	return &attemptRepo{pool: pool}
}

func (r *attemptRepo) Create(ctx context.Context, a *domain.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_attempts
		(id, notification_id, tenant_id, attempt_no, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.NotificationID, a.TenantID, a.AttemptNo, string(a.Status), a.StartedAt,
	)
	return err
}

func (r *attemptRepo) Finish(ctx context.Context, a *domain.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_attempts
		SET status=$1, finished_at=$2, error_code=$3, error_message=$4, provider_response=$5
		WHERE id=$6`,
		string(a.Status), a.FinishedAt, a.ErrorCode, a.ErrorMessage, a.ProviderResponse, a.ID,
	)
	return err
}

// AbandonPending closes attempts left pending by a dispatcher that never
// finished them.
func (r *attemptRepo) AbandonPending(ctx context.Context, notificationIDs []uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification_attempts
		SET status='error', finished_at=$2, error_code=$3, error_message='abandoned while sending'
		WHERE notification_id = ANY($1) AND status='pending'`,
		notificationIDs, now, domain.AttemptErrorStuck,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *attemptRepo) ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]domain.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, notification_id, tenant_id, attempt_no, status, started_at,
		finished_at, error_code, error_message, provider_response
		FROM notification_attempts
		WHERE notification_id=$1
		ORDER BY attempt_no ASC, started_at ASC`, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		var status string
		if err := rows.Scan(
			&a.ID, &a.NotificationID, &a.TenantID, &a.AttemptNo, &status, &a.StartedAt,
			&a.FinishedAt, &a.ErrorCode, &a.ErrorMessage, &a.ProviderResponse,
		); err != nil {
			return nil, err
		}
		a.Status = domain.AttemptStatus(status)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
