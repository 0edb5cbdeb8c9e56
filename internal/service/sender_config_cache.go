package service

import (
	"context"
	"fmt"
	"sync"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"

	"github.com/google/uuid"
)

// SenderConfigCache resolves e-mail identities with one store lookup per
// tenant. It lives for a single delivery batch and is safe for concurrent use.
type SenderConfigCache struct {
	repo   ports.SenderConfigRepository
	system domain.SenderConfig

	mu      sync.Mutex
	entries map[uuid.UUID]*domain.SenderConfig
}

// NewSenderConfigCache creates an empty cache backed by repo, falling back to
// the system identity.
func NewSenderConfigCache(repo ports.SenderConfigRepository, system domain.SenderConfig) *SenderConfigCache {
	return &SenderConfigCache{
		repo:    repo,
		system:  system,
		entries: make(map[uuid.UUID]*domain.SenderConfig),
	}
}

// Resolve returns the tenant's identity when it is verified, otherwise the
// system identity. Lookup errors are not cached.
func (c *SenderConfigCache) Resolve(ctx context.Context, tenantID uuid.UUID) (*domain.SenderConfig, error) {
	c.mu.Lock()
	cfg, ok := c.entries[tenantID]
	c.mu.Unlock()
	if ok {
		return cfg, nil
	}

	var tenantCfg *domain.SenderConfig
	if c.repo != nil {
		var err error
		tenantCfg, err = c.repo.GetByTenant(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("loading sender config: %w", err)
		}
	}

	resolved := &c.system
	if tenantCfg != nil && tenantCfg.Verified {
		resolved = tenantCfg
	}

	c.mu.Lock()
	c.entries[tenantID] = resolved
	c.mu.Unlock()
	return resolved, nil
}
