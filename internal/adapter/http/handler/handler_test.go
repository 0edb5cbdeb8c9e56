package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-notifier/internal/adapter/http/middleware"
	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/internal/core/ports/mocks"
	"storefront-notifier/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
		c.Request = httptest.NewRequest(method, target, reader)
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response should carry a data object")
	return data
}

// --- Batch Handler Tests ---

func TestSchedule_DefaultLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	scheduler := mocks.NewMockSchedulerService(ctrl)
	h := NewBatchHandler(scheduler, nil, BatchLimits{Schedule: 100, Deliver: 50})

	scheduler.EXPECT().
		RunScheduleBatch(gomock.Any(), ports.BatchParams{Limit: 100}).
		Return(&ports.ScheduleStats{EventsFetched: 4, NotificationsCreated: 2}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/batches/schedule", nil)
	h.Schedule(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(4), data["events_fetched"])
	assert.Equal(t, float64(2), data["notifications_created"])
}

func TestSchedule_BodyLimitAndTenant(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	scheduler := mocks.NewMockSchedulerService(ctrl)
	h := NewBatchHandler(scheduler, nil, BatchLimits{Schedule: 100})

	tenantID := uuid.New()
	scheduler.EXPECT().
		RunScheduleBatch(gomock.Any(), ports.BatchParams{Limit: 10, TenantID: &tenantID}).
		Return(&ports.ScheduleStats{}, nil)

	body, _ := json.Marshal(map[string]interface{}{"limit": 10, "tenant_id": tenantID.String()})
	c, w := newContext(http.MethodPost, "/", body)
	h.Schedule(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSchedule_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewBatchHandler(mocks.NewMockSchedulerService(ctrl), nil, BatchLimits{Schedule: 100})

	for _, body := range []string{`{"limit": 5000}`, `{"tenant_id": "shop-1"}`, `not json`} {
		c, w := newContext(http.MethodPost, "/", []byte(body))
		h.Schedule(c)

		assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}
}

func TestSchedule_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	scheduler := mocks.NewMockSchedulerService(ctrl)
	h := NewBatchHandler(scheduler, nil, BatchLimits{Schedule: 100})

	scheduler.EXPECT().RunScheduleBatch(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrStoreFailure(errors.New("conn refused")))

	c, w := newContext(http.MethodPost, "/", nil)
	h.Schedule(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "STORE_001", resp["error_code"])
}

func TestDeliver_PinnedTenantOverridesBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dispatcher := mocks.NewMockDispatcherService(ctrl)
	h := NewBatchHandler(nil, dispatcher, BatchLimits{Deliver: 50})

	pinned := uuid.New()
	dispatcher.EXPECT().
		RunDeliveryBatch(gomock.Any(), ports.BatchParams{Limit: 50, TenantID: &pinned}).
		Return(&ports.DeliveryStats{ClaimedCount: 3, ProcessedSuccess: 3}, nil)

	body, _ := json.Marshal(map[string]interface{}{"tenant_id": uuid.NewString()})
	c, w := newContext(http.MethodPost, "/", body)
	c.Set(middleware.CtxTenantID, pinned)
	h.Deliver(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(3), data["claimed_count"])
	assert.Equal(t, float64(3), data["processed_success"])
}

// --- Notification Handler Tests ---

func TestGetNotification_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	querySvc := mocks.NewMockNotificationQueryService(ctrl)
	h := NewNotificationHandler(querySvc)

	id := uuid.New()
	querySvc.EXPECT().GetNotification(gomock.Any(), id, nil).Return(&domain.Notification{
		ID:              id,
		Channel:         domain.ChannelWhatsApp,
		Recipient:       "5511912345678",
		RenderedPayload: domain.RenderedContent{Body: "Pago"},
		Status:          domain.NotificationStatusRetrying,
		AttemptCount:    1,
		MaxAttempts:     3,
		NextAttemptAt:   time.Date(2026, 5, 10, 15, 1, 0, 0, time.UTC),
	}, nil)

	c, w := newContext(http.MethodGet, "/api/v1/notifications/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, id.String(), data["id"])
	assert.Equal(t, "whatsapp", data["channel"])
	assert.Equal(t, "retrying", data["status"])
	assert.Equal(t, "2026-05-10T15:01:00Z", data["next_attempt_at"])
}

func TestGetNotification_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewNotificationHandler(mocks.NewMockNotificationQueryService(ctrl))

	c, w := newContext(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetNotification_PinnedTenantNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	querySvc := mocks.NewMockNotificationQueryService(ctrl)
	h := NewNotificationHandler(querySvc)

	id := uuid.New()
	tenant := uuid.New()
	querySvc.EXPECT().GetNotification(gomock.Any(), id, &tenant).
		Return(nil, apperror.ErrNotFound("Notification"))

	c, w := newContext(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	c.Set(middleware.CtxTenantID, tenant)
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAttempts_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	querySvc := mocks.NewMockNotificationQueryService(ctrl)
	h := NewNotificationHandler(querySvc)

	id := uuid.New()
	code := apperror.CodeTransport
	querySvc.EXPECT().ListAttempts(gomock.Any(), id, nil).Return([]domain.Attempt{
		{ID: uuid.New(), NotificationID: id, AttemptNo: 1, Status: domain.AttemptStatusError, ErrorCode: &code},
		{ID: uuid.New(), NotificationID: id, AttemptNo: 2, Status: domain.AttemptStatusSuccess},
	}, nil)

	c, w := newContext(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.ListAttempts(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data  []map[string]interface{} `json:"data"`
		Count int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "SEND_004", resp.Data[0]["error_code"])
	assert.Equal(t, "success", resp.Data[1]["status"])
}

func TestListAttempts_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	querySvc := mocks.NewMockNotificationQueryService(ctrl)
	h := NewNotificationHandler(querySvc)

	querySvc.EXPECT().ListAttempts(gomock.Any(), gomock.Any(), nil).Return(nil, errors.New("boom"))

	c, w := newContext(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: uuid.NewString()}}
	h.ListAttempts(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- Health Check Tests ---

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Ping(_ context.Context) error { return f.err }
func (f fakeChecker) Name() string                 { return f.name }

func TestHealthCheck(t *testing.T) {
	c, w := newContext(http.MethodGet, "/health", nil)
	HealthCheck(fakeChecker{name: "postgresql"}, fakeChecker{name: "redis"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	c, w := newContext(http.MethodGet, "/health", nil)
	HealthCheck(fakeChecker{name: "postgresql"}, fakeChecker{name: "redis", err: errors.New("down")})(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]interface{})["status"])
}

// --- Swagger Tests ---

func TestSwaggerUI(t *testing.T) {
	c, w := newContext(http.MethodGet, "/swagger", nil)
	SwaggerUI(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")
}

func TestSwaggerSpec(t *testing.T) {
	SetSwaggerSpec([]byte("openapi: '3.0.0'"))
	c, w := newContext(http.MethodGet, "/swagger/spec", nil)
	SwaggerSpec(c)
	assert.Equal(t, http.StatusOK, w.Code)

	SetSwaggerSpec(nil)
	c, w = newContext(http.MethodGet, "/swagger/spec", nil)
	SwaggerSpec(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
