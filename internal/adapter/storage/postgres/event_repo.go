package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, tenant_id, event_type, payload, occurred_at, received_at, status, processing_started_at`

// EventRepo implements ports.EventRepository over the events table.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// ListPending returns new or pending events, oldest received first.
func (r *EventRepo) ListPending(ctx context.Context, params ports.EventListParams) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE status IN ('new', 'pending') AND ($2::uuid IS NULL OR tenant_id = $2)
		ORDER BY received_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, params.Limit, params.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

// MarkProcessing moves an event to processing if it is still new or pending.
func (r *EventRepo) MarkProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `UPDATE events SET status = 'processing', processing_started_at = $2
		WHERE id = $1 AND status IN ('new', 'pending')`

	tag, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("mark event processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finish sets the final status inside the scheduling transaction.
func (r *EventRepo) Finish(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.EventStatus) error {
	query := `UPDATE events SET status = $2, processing_started_at = NULL
		WHERE id = $1 AND status = 'processing'`

	tag, err := conn(r.pool, tx).Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("finish event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event not processing: %s", id)
	}
	return nil
}

// Release returns a processing event to pending.
func (r *EventRepo) Release(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE events SET status = 'pending', processing_started_at = NULL
		WHERE id = $1 AND status = 'processing'`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("release event: %w", err)
	}
	return nil
}

// RecoverStuck returns events left in processing since before startedBefore to pending.
// A non-nil tenantID limits recovery to that tenant.
func (r *EventRepo) RecoverStuck(ctx context.Context, startedBefore time.Time, tenantID *uuid.UUID) (int64, error) {
	query := `UPDATE events SET status = 'pending', processing_started_at = NULL
		WHERE status = 'processing' AND processing_started_at < $1
			AND ($2::uuid IS NULL OR tenant_id = $2)`

	tag, err := r.pool.Exec(ctx, query, startedBefore, tenantID)
	if err != nil {
		return 0, fmt.Errorf("recover stuck events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID fetches an event by UUID.
func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	ev, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ev, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	ev := &domain.Event{}
	var raw []byte
	err := row.Scan(
		&ev.ID, &ev.TenantID, &ev.EventType, &raw,
		&ev.OccurredAt, &ev.ReceivedAt, &ev.Status, &ev.ProcessingStartedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload %s: %w", ev.ID, err)
		}
	}
	return ev, nil
}
