package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-notifier/internal/core/domain"

	"github.com/google/uuid"
)

// RuleRepo implements ports.RuleRepository over the notification_rules table.
type RuleRepo struct {
	pool Pool
}

// NewRuleRepo creates a new RuleRepo.
func NewRuleRepo(pool Pool) *RuleRepo {
	return &RuleRepo{pool: pool}
}

// ListEnabled returns the tenant's enabled rules, highest priority first.
func (r *RuleRepo) ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error) {
	query := `SELECT id, tenant_id, name, rule_type, trigger_condition, channels, templates,
		delay_amount, delay_unit, product_scope, dedupe_scope, priority, effective_from, enabled,
		legacy_filters, legacy_actions, created_at
		FROM notification_rules
		WHERE tenant_id = $1 AND enabled = TRUE
		ORDER BY priority DESC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.Rule
	for rows.Next() {
		var (
			rule                         domain.Rule
			channels, templates, scope   []byte
			legacyFilters, legacyActions []byte
		)
		err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.RuleType, &rule.TriggerCondition,
			&channels, &templates, &rule.DelayAmount, &rule.DelayUnit, &scope,
			&rule.DedupeScope, &rule.Priority, &rule.EffectiveFrom, &rule.Enabled,
			&legacyFilters, &legacyActions, &rule.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		if err := decodeJSONColumns(
			jsonColumn{"channels", channels, &rule.Channels},
			jsonColumn{"templates", templates, &rule.Templates},
			jsonColumn{"product_scope", scope, &rule.ProductScope},
			jsonColumn{"legacy_filters", legacyFilters, &rule.LegacyFilters},
			jsonColumn{"legacy_actions", legacyActions, &rule.LegacyActions},
		); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule rows: %w", err)
	}
	return rules, nil
}

type jsonColumn struct {
	name string
	raw  []byte
	dst  any
}

// decodeJSONColumns unmarshals nullable jsonb columns; NULL leaves dst untouched.
func decodeJSONColumns(cols ...jsonColumn) error {
	for _, c := range cols {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dst); err != nil {
			return fmt.Errorf("decode %s: %w", c.name, err)
		}
	}
	return nil
}
