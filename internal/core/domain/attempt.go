package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus represents the outcome of one delivery try.
type AttemptStatus string

const (
	AttemptStatusPending AttemptStatus = "pending"
	AttemptStatusSuccess AttemptStatus = "success"
	AttemptStatusError   AttemptStatus = "error"
)

// AttemptErrorStuck marks an attempt closed by stuck-send recovery.
const AttemptErrorStuck = "STUCK"

// Attempt records a single delivery try. Append-only.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	NotificationID   uuid.UUID     `json:"notification_id"`
	TenantID         uuid.UUID     `json:"tenant_id"`
	AttemptNo        int           `json:"attempt_no"`
	Status           AttemptStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	ErrorCode        *string       `json:"error_code,omitempty"`
	ErrorMessage     *string       `json:"error_message,omitempty"`
	ProviderResponse *string       `json:"provider_response,omitempty"`
}
