package postgres

import (
	"context"
	"fmt"

	"storefront-notifier/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.DedupLedgerRepository over the dedup_ledger
// table, unique on (tenant_id, rule_id, entity_id).
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Reserve inserts the marker and reports whether this call created it.
func (r *LedgerRepo) Reserve(ctx context.Context, tx pgx.Tx, e *domain.DedupLedgerEntry) (bool, error) {
	query := `INSERT INTO dedup_ledger (tenant_id, rule_id, entity_type, entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, rule_id, entity_id) DO NOTHING`

	tag, err := conn(r.pool, tx).Exec(ctx, query, e.TenantID, e.RuleID, e.EntityType, e.EntityID, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("reserve dedup ledger entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
