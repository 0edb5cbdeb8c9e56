package postgres

import (
	"context"
	"testing"
	"time"

	"storefront-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptRepo_CreateAndFinish(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAttemptRepository(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := &domain.Attempt{
		ID: uuid.New(), NotificationID: uuid.New(), TenantID: uuid.New(),
		AttemptNo: 1, Status: domain.AttemptStatusPending, StartedAt: now,
	}

	mock.ExpectExec("INSERT INTO notification_attempts").
		WithArgs(a.ID, a.NotificationID, a.TenantID, a.AttemptNo, "pending", a.StartedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), a))

	code, msg := "SEND_004", "provider returned 503"
	a.Status = domain.AttemptStatusError
	a.FinishedAt = &now
	a.ErrorCode = &code
	a.ErrorMessage = &msg

	mock.ExpectExec("UPDATE notification_attempts SET status").
		WithArgs("error", a.FinishedAt, a.ErrorCode, a.ErrorMessage, a.ProviderResponse, a.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Finish(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepo_AbandonPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ids := []uuid.UUID{uuid.New()}
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE notification_attempts SET status='error'.+WHERE notification_id = ANY").
		WithArgs(ids, now, domain.AttemptErrorStuck).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := NewAttemptRepository(mock).AbandonPending(context.Background(), ids, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepo_ListByNotification(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	notificationID, tenantID := uuid.New(), uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	code := "SEND_004"

	mock.ExpectQuery("SELECT .+ FROM notification_attempts WHERE notification_id").
		WithArgs(notificationID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "notification_id", "tenant_id", "attempt_no", "status", "started_at",
			"finished_at", "error_code", "error_message", "provider_response",
		}).
			AddRow(uuid.New(), notificationID, tenantID, 1, "error", now, &now, &code, (*string)(nil), (*string)(nil)).
			AddRow(uuid.New(), notificationID, tenantID, 2, "success", now, &now, (*string)(nil), (*string)(nil), (*string)(nil)))

	attempts, err := NewAttemptRepository(mock).ListByNotification(context.Background(), notificationID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, domain.AttemptStatusError, attempts[0].Status)
	assert.Equal(t, "SEND_004", *attempts[0].ErrorCode)
	assert.Equal(t, domain.AttemptStatusSuccess, attempts[1].Status)
	assert.Equal(t, 2, attempts[1].AttemptNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}
