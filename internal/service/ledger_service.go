package service

import (
	"context"
	"fmt"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// DefaultLedgerCacheTTL bounds how long the Redis marker outlives its row lookup.
const DefaultLedgerCacheTTL = 30 * 24 * time.Hour

// LedgerService is the dedup ledger: a Redis marker (fast path) in front of
// the ledger table (source of truth).
type LedgerService struct {
	repo  ports.DedupLedgerRepository
	cache ports.LedgerCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewLedgerService creates a ledger. cache may be nil.
func NewLedgerService(repo ports.DedupLedgerRepository, cache ports.LedgerCache, ttl time.Duration, log zerolog.Logger) *LedgerService {
	if ttl <= 0 {
		ttl = DefaultLedgerCacheTTL
	}
	return &LedgerService{repo: repo, cache: cache, ttl: ttl, log: log}
}

// CheckAndReserve reports whether the business fact was already notified for
// this rule. When it was not, the reservation is written inside tx and only
// becomes visible once tx commits. Rules with dedupe scope none always
// report not-existing.
func (l *LedgerService) CheckAndReserve(ctx context.Context, tx pgx.Tx, rule *domain.Rule, entityType, entityID string, now time.Time) (bool, error) {
	if !rule.DedupeScope.Enabled() {
		return false, nil
	}

	key := domain.BuildLedgerKey(rule.TenantID, rule.ID, entityID)
	if l.cache != nil {
		seen, err := l.cache.Seen(ctx, key)
		if err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("ledger cache unavailable, falling back to store")
		} else if seen {
			return true, nil
		}
	}

	inserted, err := l.repo.Reserve(ctx, tx, &domain.DedupLedgerEntry{
		TenantID:   rule.TenantID,
		RuleID:     rule.ID,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  now,
	})
	if err != nil {
		return false, fmt.Errorf("reserving ledger entry: %w", err)
	}
	if !inserted {
		l.Remember(ctx, rule.TenantID, rule.ID, entityID)
		return true, nil
	}
	return false, nil
}

// Remember sets the Redis marker for a committed reservation. Failures are
// logged only; the table remains authoritative.
func (l *LedgerService) Remember(ctx context.Context, tenantID, ruleID uuid.UUID, entityID string) {
	if l.cache == nil {
		return
	}
	key := domain.BuildLedgerKey(tenantID, ruleID, entityID)
	if err := l.cache.Remember(ctx, key, l.ttl); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("failed to cache ledger entry")
	}
}
