package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Entity types used as dedup scope.
const (
	EntityOrder    = "order"
	EntityCheckout = "checkout"
	EntityCustomer = "customer"
	EntityEvent    = "event"
)

// DedupLedgerEntry marks a (tenant, rule, entity) business fact as notified.
// Unique on (tenant_id, rule_id, entity_id).
type DedupLedgerEntry struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	RuleID     uuid.UUID `json:"rule_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// keySep never appears in UUIDs and is unusual in business identifiers.
const keySep = "\x1f"

// BuildDedupeKey derives the content-independent Notification idempotency key.
func BuildDedupeKey(tenantID, ruleID uuid.UUID, entityID string, channel Channel, condition string) string {
	raw := strings.Join([]string{
		tenantID.String(), ruleID.String(), entityID, string(channel), condition,
	}, keySep)
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// BuildLedgerKey constructs the cache key of a ledger entry.
func BuildLedgerKey(tenantID, ruleID uuid.UUID, entityID string) string {
	return tenantID.String() + ":" + ruleID.String() + ":" + entityID
}
