package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"storefront-notifier/internal/core/domain"

	"github.com/google/uuid"
)

// LedgerCache is the Redis fast path in front of the dedup ledger.
type LedgerCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) error
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// RateLimitStore counts operator requests in fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles operator JWTs.
type TokenService interface {
	Generate(subject string, tenantID *uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims. A nil TenantID grants access to
// every tenant.
type TokenClaims struct {
	Subject  string
	TenantID *uuid.UUID
}

// SenderConfigResolver returns the effective e-mail identity for a tenant.
type SenderConfigResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) (*domain.SenderConfig, error)
}

// SendRequest is one delivery handed to a channel sender.
type SendRequest struct {
	TenantID       uuid.UUID
	NotificationID uuid.UUID
	Recipient      string
	Content        domain.RenderedContent
	Identities     SenderConfigResolver
}

// SendResult is the outcome reported by a channel sender. Senders report
// failures here rather than returning errors.
type SendResult struct {
	Success           bool
	ErrorCode         string
	Error             string
	ProviderMessageID string
	ProviderResponse  string
}

// ChannelSender delivers rendered content over one channel.
type ChannelSender interface {
	Channel() domain.Channel
	Send(ctx context.Context, req SendRequest) SendResult
}

// --- Service Ports (Business Logic) ---

// MatchResult is the matcher verdict for one (event, rule) pair.
type MatchResult struct {
	Matched bool
	// Condition is the normalized condition that fired, part of the dedupe key.
	Condition string
	// EntityType and EntityID scope deduplication.
	EntityType string
	EntityID   string
	// UnknownStatus is set when the event carried a status outside the
	// condition table.
	UnknownStatus string
}

// RuleMatcher decides whether a rule fires for an event.
type RuleMatcher interface {
	Match(ctx context.Context, event *domain.Event, rule *domain.Rule) (MatchResult, error)
}

// BatchParams bounds one pipeline batch.
type BatchParams struct {
	Limit    int
	TenantID *uuid.UUID
}

// ScheduleStats summarizes one scheduling batch.
type ScheduleStats struct {
	EventsFetched        int `json:"events_fetched"`
	EventsProcessed      int `json:"events_processed"`
	EventsIgnored        int `json:"events_ignored"`
	EventsRecovered      int `json:"events_recovered"`
	RulesMatched         int `json:"rules_matched"`
	NotificationsCreated int `json:"notifications_created"`
	LedgerConflicts      int `json:"ledger_conflicts"`
	Errors               int `json:"errors"`
}

// DeliveryStats summarizes one delivery batch.
type DeliveryStats struct {
	ClaimedCount     int `json:"claimed_count"`
	ProcessedSuccess int `json:"processed_success"`
	ProcessedError   int `json:"processed_error"`
	ScheduledRetries int `json:"scheduled_retries"`
	FailedFinal      int `json:"failed_final"`
	UnstuckCount     int `json:"unstuck_count"`
}

// SchedulerService turns pending events into scheduled notifications.
type SchedulerService interface {
	RunScheduleBatch(ctx context.Context, params BatchParams) (*ScheduleStats, error)
}

// DispatcherService delivers due notifications.
type DispatcherService interface {
	RunDeliveryBatch(ctx context.Context, params BatchParams) (*DeliveryStats, error)
}

// NotificationQueryService exposes read access for operators.
type NotificationQueryService interface {
	GetNotification(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID) (*domain.Notification, error)
	ListAttempts(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID) ([]domain.Attempt, error)
}
