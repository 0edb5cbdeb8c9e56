package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLog is the reporting projection of a Notification, one row per
// notification, last write wins.
type NotificationLog struct {
	NotificationID uuid.UUID          `json:"notification_id"`
	TenantID       uuid.UUID          `json:"tenant_id"`
	EventID        uuid.UUID          `json:"event_id"`
	RuleID         uuid.UUID          `json:"rule_id"`
	EventType      string             `json:"event_type"`
	Channel        Channel            `json:"channel"`
	Recipient      string             `json:"recipient"`
	Status         NotificationStatus `json:"status"`
	AttemptCount   int                `json:"attempt_count"`
	LastError      *string            `json:"last_error,omitempty"`
	ScheduledFor   time.Time          `json:"scheduled_for"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
	OrderID        *string            `json:"order_id,omitempty"`
	CustomerID     *string            `json:"customer_id,omitempty"`
	CheckoutID     *string            `json:"checkout_id,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewNotificationLog projects the current notification state together with
// the business identifiers of its event. ev may be nil when the event is gone.
func NewNotificationLog(n *Notification, ev *Event, now time.Time) *NotificationLog {
	l := &NotificationLog{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		EventID:        n.EventID,
		RuleID:         n.RuleID,
		Channel:        n.Channel,
		Recipient:      n.Recipient,
		Status:         n.Status,
		AttemptCount:   n.AttemptCount,
		LastError:      n.LastError,
		ScheduledFor:   n.ScheduledFor,
		SentAt:         n.SentAt,
		UpdatedAt:      now,
	}
	if ev != nil {
		l.EventType = ev.EventType
		l.OrderID = optional(ev.OrderID())
		l.CustomerID = optional(ev.CustomerID())
		l.CheckoutID = optional(ev.CheckoutID())
	}
	return l
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
