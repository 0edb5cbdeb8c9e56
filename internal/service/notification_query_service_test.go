package service

import (
	"context"
	"errors"
	"testing"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports/mocks"
	"storefront-notifier/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupQuery(t *testing.T) (*mocks.MockNotificationRepository, *mocks.MockAttemptRepository, *gomock.Controller) {
	ctrl := gomock.NewController(t)
	return mocks.NewMockNotificationRepository(ctrl), mocks.NewMockAttemptRepository(ctrl), ctrl
}

func TestNotificationQuery_GetNotification(t *testing.T) {
	notifications, attempts, ctrl := setupQuery(t)
	defer ctrl.Finish()

	ctx := context.Background()
	n := &domain.Notification{ID: uuid.New(), TenantID: uuid.New()}
	notifications.EXPECT().GetByID(ctx, n.ID).Return(n, nil).Times(2)

	svc := NewNotificationQueryService(notifications, attempts)

	got, err := svc.GetNotification(ctx, n.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)

	got, err = svc.GetNotification(ctx, n.ID, &n.TenantID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
}

func TestNotificationQuery_OtherTenantIsNotFound(t *testing.T) {
	notifications, attempts, ctrl := setupQuery(t)
	defer ctrl.Finish()

	ctx := context.Background()
	n := &domain.Notification{ID: uuid.New(), TenantID: uuid.New()}
	other := uuid.New()
	notifications.EXPECT().GetByID(ctx, n.ID).Return(n, nil)

	_, err := NewNotificationQueryService(notifications, attempts).GetNotification(ctx, n.ID, &other)
	require.Error(t, err)
	assert.Equal(t, "NF_001", apperror.CodeOf(err))
}

func TestNotificationQuery_MissingIsNotFound(t *testing.T) {
	notifications, attempts, ctrl := setupQuery(t)
	defer ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	notifications.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, err := NewNotificationQueryService(notifications, attempts).GetNotification(ctx, id, nil)
	assert.Equal(t, "NF_001", apperror.CodeOf(err))
}

func TestNotificationQuery_StoreError(t *testing.T) {
	notifications, attempts, ctrl := setupQuery(t)
	defer ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	notifications.EXPECT().GetByID(ctx, id).Return(nil, errors.New("boom"))

	_, err := NewNotificationQueryService(notifications, attempts).GetNotification(ctx, id, nil)
	assert.Equal(t, apperror.CodeStoreFailure, apperror.CodeOf(err))
}

func TestNotificationQuery_ListAttempts(t *testing.T) {
	notifications, attempts, ctrl := setupQuery(t)
	defer ctrl.Finish()

	ctx := context.Background()
	n := &domain.Notification{ID: uuid.New(), TenantID: uuid.New()}
	rows := []domain.Attempt{{ID: uuid.New(), NotificationID: n.ID, AttemptNo: 1}, {ID: uuid.New(), NotificationID: n.ID, AttemptNo: 2}}
	notifications.EXPECT().GetByID(ctx, n.ID).Return(n, nil)
	attempts.EXPECT().ListByNotification(ctx, n.ID).Return(rows, nil)

	got, err := NewNotificationQueryService(notifications, attempts).ListAttempts(ctx, n.ID, &n.TenantID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestNotificationQuery_ListAttemptsHiddenTenant(t *testing.T) {
	notifications, attempts, ctrl := setupQuery(t)
	defer ctrl.Finish()

	ctx := context.Background()
	n := &domain.Notification{ID: uuid.New(), TenantID: uuid.New()}
	other := uuid.New()
	notifications.EXPECT().GetByID(ctx, n.ID).Return(n, nil)

	_, err := NewNotificationQueryService(notifications, attempts).ListAttempts(ctx, n.ID, &other)
	assert.Equal(t, "NF_001", apperror.CodeOf(err))
}
