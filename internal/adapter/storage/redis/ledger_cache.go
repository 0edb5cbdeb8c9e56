package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// LedgerCache implements ports.LedgerCache using Redis. It mirrors dedup
// ledger reservations so repeat matches skip the database round trip. The
// ledger table stays authoritative; a miss here proves nothing.
type LedgerCache struct {
	client *goredis.Client
	prefix string
}

// NewLedgerCache creates a new Redis-backed ledger cache.
func NewLedgerCache(client *goredis.Client) *LedgerCache {
	return &LedgerCache{
		client: client,
		prefix: "ledger:",
	}
}

// Seen reports whether the ledger key has been remembered.
func (c *LedgerCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger exists: %w", err)
	}
	return n > 0, nil
}

// Remember marks the ledger key with SET NX. An existing mark keeps its TTL.
func (c *LedgerCache) Remember(ctx context.Context, key string, ttl time.Duration) error {
	err := c.client.SetArgs(ctx, c.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis ledger set: %w", err)
	}
	return nil
}
