package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationStatus represents the delivery state of a Notification.
type NotificationStatus string

const (
	NotificationStatusScheduled NotificationStatus = "scheduled"
	NotificationStatusSending   NotificationStatus = "sending"
	NotificationStatusRetrying  NotificationStatus = "retrying"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusFailed    NotificationStatus = "failed"
)

// DefaultMaxAttempts is the per-notification delivery budget.
const DefaultMaxAttempts = 3

// RenderedContent is the channel content after template substitution.
type RenderedContent struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// Notification is one outbound message on one channel to one recipient.
// Created by the scheduler, mutated only by the dispatcher.
type Notification struct {
	ID              uuid.UUID          `json:"id"`
	TenantID        uuid.UUID          `json:"tenant_id"`
	EventID         uuid.UUID          `json:"event_id"`
	RuleID          uuid.UUID          `json:"rule_id"`
	Channel         Channel            `json:"channel"`
	Recipient       string             `json:"recipient"`
	RenderedPayload RenderedContent    `json:"rendered_payload"`
	Status          NotificationStatus `json:"status"`
	EntityType      string             `json:"entity_type"`
	EntityID        string             `json:"entity_id"`
	ScheduledFor    time.Time          `json:"scheduled_for"`
	NextAttemptAt   time.Time          `json:"next_attempt_at"`
	AttemptCount    int                `json:"attempt_count"`
	MaxAttempts     int                `json:"max_attempts"`
	LastAttemptAt   *time.Time         `json:"last_attempt_at,omitempty"`
	LastError       *string            `json:"last_error,omitempty"`
	SentAt          *time.Time         `json:"sent_at,omitempty"`
	DedupeKey       string             `json:"dedupe_key"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// IsTerminal returns true if the notification will never be attempted again.
func (n *Notification) IsTerminal() bool {
	return n.Status == NotificationStatusSent || n.Status == NotificationStatusFailed
}

// IsClaimable returns true if a dispatcher may claim the notification.
func (n *Notification) IsClaimable() bool {
	return n.Status == NotificationStatusScheduled || n.Status == NotificationStatusRetrying
}

// Exhausted reports whether attemptNo used up the delivery budget.
func (n *Notification) Exhausted(attemptNo int) bool {
	return attemptNo >= n.MaxAttempts
}

// InterruptedSendError is recorded on notifications reset by stuck-send recovery.
const InterruptedSendError = "send interrupted, recovered after timeout"

// RecoverInterrupted applies stuck-send recovery. The interrupted send counts
// toward the budget, so a row that keeps crashing its dispatcher still ends
// in failed.
func (n *Notification) RecoverInterrupted(now time.Time) {
	n.AttemptCount++
	msg := InterruptedSendError
	n.LastError = &msg
	n.UpdatedAt = now
	if n.Exhausted(n.AttemptCount) {
		n.Status = NotificationStatusFailed
		return
	}
	n.Status = NotificationStatusRetrying
	n.NextAttemptAt = now
}

const (
	retryBackoffBase = 60 * time.Second
	retryBackoffCap  = time.Hour
)

// RetryBackoff returns min(60s * 2^(attemptNo-1), 1h).
func RetryBackoff(attemptNo int) time.Duration {
	if attemptNo < 1 {
		attemptNo = 1
	}
	// 60s * 2^6 already exceeds the cap; avoid shifting into overflow.
	if attemptNo > 7 {
		return retryBackoffCap
	}
	d := retryBackoffBase << (attemptNo - 1)
	if d > retryBackoffCap {
		return retryBackoffCap
	}
	return d
}
