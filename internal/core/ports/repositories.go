package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"storefront-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventListParams selects a batch of pending events.
type EventListParams struct {
	Limit    int
	TenantID *uuid.UUID
}

// EventRepository defines persistence operations for business events.
// Status transitions are conditional so concurrent schedulers never process
// the same event twice.
type EventRepository interface {
	ListPending(ctx context.Context, params EventListParams) ([]domain.Event, error)
	// MarkProcessing moves a new/pending event to processing. Returns false if
	// another worker got there first.
	MarkProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Finish(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.EventStatus) error
	Release(ctx context.Context, id uuid.UUID) error
	// RecoverStuck returns events left in processing since before startedBefore
	// to pending. A non-nil tenantID limits recovery to that tenant.
	RecoverStuck(ctx context.Context, startedBefore time.Time, tenantID *uuid.UUID) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
}

// RuleRepository defines read access to tenant rules.
type RuleRepository interface {
	// ListEnabled returns the tenant's enabled rules, highest priority first.
	ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error)
}

// DedupLedgerRepository is the durable once-per-fact record.
type DedupLedgerRepository interface {
	// Reserve inserts the entry inside tx. Returns false if it already existed.
	Reserve(ctx context.Context, tx pgx.Tx, entry *domain.DedupLedgerEntry) (bool, error)
}

// DueParams selects notifications ready for delivery.
type DueParams struct {
	Now      time.Time
	Limit    int
	TenantID *uuid.UUID
}

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	// Create inserts n inside tx. Returns false when the dedupe key is taken.
	Create(ctx context.Context, tx pgx.Tx, n *domain.Notification) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	// RecoverStuck resets sending rows last attempted before cutoff. The
	// interrupted send counts as an attempt; rows that run out of attempts
	// become failed, the rest retrying. A non-nil tenantID limits recovery
	// to that tenant. Returns the rows as updated.
	RecoverStuck(ctx context.Context, cutoff, now time.Time, tenantID *uuid.UUID) ([]domain.Notification, error)
	ListDue(ctx context.Context, params DueParams) ([]uuid.UUID, error)
	// Claim moves the given scheduled/retrying rows to sending and returns
	// only the rows this caller won.
	Claim(ctx context.Context, ids []uuid.UUID, claimedAt time.Time) ([]domain.Notification, error)
	// Complete persists the outcome of a send. It only applies while the row is
	// still sending under the same claim; returns false otherwise.
	Complete(ctx context.Context, n *domain.Notification, claimedAt time.Time) (bool, error)
}

// AttemptRepository defines persistence operations for delivery attempts.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.Attempt) error
	Finish(ctx context.Context, a *domain.Attempt) error
	// AbandonPending closes dangling pending attempts of the given notifications.
	AbandonPending(ctx context.Context, notificationIDs []uuid.UUID, now time.Time) (int64, error)
	ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]domain.Attempt, error)
}

// NotificationLogRepository maintains the one-row-per-notification projection.
// tx may be nil.
type NotificationLogRepository interface {
	Upsert(ctx context.Context, tx pgx.Tx, log *domain.NotificationLog) error
}

// OrderLookup answers conversion questions about a customer.
type OrderLookup interface {
	HasCompletedOrderSince(ctx context.Context, tenantID uuid.UUID, email string, since time.Time) (bool, error)
}

// SenderConfigRepository reads e-mail sender identities.
type SenderConfigRepository interface {
	// GetByTenant returns nil without error when the tenant has none.
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.SenderConfig, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
