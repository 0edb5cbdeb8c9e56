package service

import (
	"context"
	"fmt"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/pkg/apperror"

	"github.com/google/uuid"
)

// notificationQueryService implements ports.NotificationQueryService.
type notificationQueryService struct {
	notifications ports.NotificationRepository
	attempts      ports.AttemptRepository
}

// NewNotificationQueryService creates the operator read service.
func NewNotificationQueryService(notifications ports.NotificationRepository, attempts ports.AttemptRepository) ports.NotificationQueryService {
	return &notificationQueryService{notifications: notifications, attempts: attempts}
}

// GetNotification returns a notification. A tenant-pinned caller only sees
// its own tenant's rows; anything else reads as not found.
func (s *notificationQueryService) GetNotification(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID) (*domain.Notification, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrStoreFailure(fmt.Errorf("get notification: %w", err))
	}
	if n == nil || (tenantID != nil && n.TenantID != *tenantID) {
		return nil, apperror.ErrNotFound("Notification")
	}
	return n, nil
}

// ListAttempts returns the attempts of a visible notification, oldest first.
func (s *notificationQueryService) ListAttempts(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID) ([]domain.Attempt, error) {
	if _, err := s.GetNotification(ctx, id, tenantID); err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListByNotification(ctx, id)
	if err != nil {
		return nil, apperror.ErrStoreFailure(fmt.Errorf("list attempts: %w", err))
	}
	return attempts, nil
}
