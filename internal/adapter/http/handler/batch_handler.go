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

// BatchLimits are the configured defaults when a request omits a limit.
type BatchLimits struct {
	Schedule int
	Deliver  int
}

// BatchHandler triggers scheduling and delivery batches on demand.
type BatchHandler struct {
	scheduler  ports.SchedulerService
	dispatcher ports.DispatcherService
	limits     BatchLimits
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(scheduler ports.SchedulerService, dispatcher ports.DispatcherService, limits BatchLimits) *BatchHandler {
	return &BatchHandler{scheduler: scheduler, dispatcher: dispatcher, limits: limits}
}

// Schedule handles POST /api/v1/batches/schedule.
func (h *BatchHandler) Schedule(c *gin.Context) {
	params, err := batchParams(c, h.limits.Schedule)
	if err != nil {
		response.Error(c, err)
		return
	}

	stats, err := h.scheduler.RunScheduleBatch(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Deliver handles POST /api/v1/batches/deliver.
func (h *BatchHandler) Deliver(c *gin.Context) {
	params, err := batchParams(c, h.limits.Deliver)
	if err != nil {
		response.Error(c, err)
		return
	}

	stats, err := h.dispatcher.RunDeliveryBatch(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// batchParams reads the optional body. A tenant-pinned token always scopes
// the batch to its own tenant.
func batchParams(c *gin.Context, defaultLimit int) (ports.BatchParams, error) {
	var req dto.BatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return ports.BatchParams{}, apperror.Validation(err.Error())
		}
	}

	params := ports.BatchParams{Limit: req.Limit}
	if params.Limit == 0 {
		params.Limit = defaultLimit
	}
	if req.TenantID != "" {
		id, err := uuid.Parse(req.TenantID)
		if err != nil {
			return ports.BatchParams{}, apperror.Validation("tenant_id must be a UUID")
		}
		params.TenantID = &id
	}
	if pinned := middleware.PinnedTenant(c); pinned != nil {
		params.TenantID = pinned
	}
	return params, nil
}
