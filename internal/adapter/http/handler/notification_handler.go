package handler

import (
	"storefront-notifier/internal/adapter/http/dto"
	"storefront-notifier/internal/adapter/http/middleware"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/pkg/apperror"
	"storefront-notifier/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NotificationHandler exposes notifications and their attempt history.
type NotificationHandler struct {
	querySvc ports.NotificationQueryService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(querySvc ports.NotificationQueryService) *NotificationHandler {
	return &NotificationHandler{querySvc: querySvc}
}

// Get handles GET /api/v1/notifications/:id.
func (h *NotificationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("notification id must be a UUID"))
		return
	}

	n, err := h.querySvc.GetNotification(c.Request.Context(), id, middleware.PinnedTenant(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToNotificationResponse(n))
}

// ListAttempts handles GET /api/v1/notifications/:id/attempts.
func (h *NotificationHandler) ListAttempts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("notification id must be a UUID"))
		return
	}

	attempts, err := h.querySvc.ListAttempts(c.Request.Context(), id, middleware.PinnedTenant(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, dto.ToAttemptResponses(attempts), len(attempts))
}
