package postgres

import (
	"context"
	"errors"
	"fmt"

	"storefront-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SenderConfigRepo implements ports.SenderConfigRepository.
type SenderConfigRepo struct {
	pool Pool
}

// NewSenderConfigRepo creates a new SenderConfigRepo.
func NewSenderConfigRepo(pool Pool) *SenderConfigRepo {
	return &SenderConfigRepo{pool: pool}
}

// GetByTenant fetches the tenant's e-mail identity. Returns nil when the
// tenant has not configured one.
func (r *SenderConfigRepo) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.SenderConfig, error) {
	query := `SELECT tenant_id, from_name, from_address, COALESCE(reply_to, ''), verified, COALESCE(verified_domain, '')
		FROM sender_configs WHERE tenant_id = $1`

	c := &domain.SenderConfig{}
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&id, &c.FromName, &c.FromAddress, &c.ReplyTo, &c.Verified, &c.VerifiedDomain,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sender config: %w", err)
	}
	c.TenantID = &id
	return c, nil
}
