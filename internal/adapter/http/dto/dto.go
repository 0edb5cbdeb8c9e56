package dto

import (
	"time"

	"storefront-notifier/internal/core/domain"
)

// BatchRequest is the optional request body of the batch triggers. Zero
// values fall back to the configured limit and to every tenant.
type BatchRequest struct {
	Limit    int    `json:"limit" binding:"batch_limit"`
	TenantID string `json:"tenant_id" binding:"omitempty,uuid"`
}

// NotificationResponse is the operator view of a notification.
type NotificationResponse struct {
	ID            string  `json:"id"`
	TenantID      string  `json:"tenant_id"`
	EventID       string  `json:"event_id"`
	RuleID        string  `json:"rule_id"`
	Channel       string  `json:"channel"`
	Recipient     string  `json:"recipient"`
	Subject       string  `json:"subject,omitempty"`
	Body          string  `json:"body"`
	Status        string  `json:"status"`
	EntityType    string  `json:"entity_type"`
	EntityID      string  `json:"entity_id"`
	ScheduledFor  string  `json:"scheduled_for"`
	NextAttemptAt string  `json:"next_attempt_at"`
	AttemptCount  int     `json:"attempt_count"`
	MaxAttempts   int     `json:"max_attempts"`
	LastAttemptAt *string `json:"last_attempt_at,omitempty"`
	LastError     *string `json:"last_error,omitempty"`
	SentAt        *string `json:"sent_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// AttemptResponse is the operator view of one delivery attempt.
type AttemptResponse struct {
	ID               string  `json:"id"`
	AttemptNo        int     `json:"attempt_no"`
	Status           string  `json:"status"`
	StartedAt        string  `json:"started_at"`
	FinishedAt       *string `json:"finished_at,omitempty"`
	ErrorCode        *string `json:"error_code,omitempty"`
	ErrorMessage     *string `json:"error_message,omitempty"`
	ProviderResponse *string `json:"provider_response,omitempty"`
}

// ToNotificationResponse maps a domain notification to its response body.
func ToNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            n.ID.String(),
		TenantID:      n.TenantID.String(),
		EventID:       n.EventID.String(),
		RuleID:        n.RuleID.String(),
		Channel:       string(n.Channel),
		Recipient:     n.Recipient,
		Subject:       n.RenderedPayload.Subject,
		Body:          n.RenderedPayload.Body,
		Status:        string(n.Status),
		EntityType:    n.EntityType,
		EntityID:      n.EntityID,
		ScheduledFor:  formatTime(n.ScheduledFor),
		NextAttemptAt: formatTime(n.NextAttemptAt),
		AttemptCount:  n.AttemptCount,
		MaxAttempts:   n.MaxAttempts,
		LastAttemptAt: formatTimePtr(n.LastAttemptAt),
		LastError:     n.LastError,
		SentAt:        formatTimePtr(n.SentAt),
		CreatedAt:     formatTime(n.CreatedAt),
	}
}

// ToAttemptResponses maps attempts in order.
func ToAttemptResponses(attempts []domain.Attempt) []AttemptResponse {
	out := make([]AttemptResponse, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		out = append(out, AttemptResponse{
			ID:               a.ID.String(),
			AttemptNo:        a.AttemptNo,
			Status:           string(a.Status),
			StartedAt:        formatTime(a.StartedAt),
			FinishedAt:       formatTimePtr(a.FinishedAt),
			ErrorCode:        a.ErrorCode,
			ErrorMessage:     a.ErrorMessage,
			ProviderResponse: a.ProviderResponse,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
