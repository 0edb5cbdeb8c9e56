package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc   *LedgerService
	repo  *mocks.MockDedupLedgerRepository
	cache *mocks.MockLedgerCache
	ctrl  *gomock.Controller
}

func setupLedger(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		repo:  mocks.NewMockDedupLedgerRepository(ctrl),
		cache: mocks.NewMockLedgerCache(ctrl),
		ctrl:  ctrl,
	}
	d.svc = NewLedgerService(d.repo, d.cache, time.Hour, zerolog.Nop())
	return d
}

func TestLedger_ScopeNone_NeverTouchesStore(t *testing.T) {
	d := setupLedger(t)
	defer d.ctrl.Finish()

	rule := &domain.Rule{ID: uuid.New(), TenantID: uuid.New(), DedupeScope: domain.DedupeScopeNone}

	exists, err := d.svc.CheckAndReserve(context.Background(), &mockTx{}, rule, domain.EntityOrder, "o1", time.Now())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_CacheHit(t *testing.T) {
	d := setupLedger(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	rule := &domain.Rule{ID: uuid.New(), TenantID: uuid.New()}
	key := domain.BuildLedgerKey(rule.TenantID, rule.ID, "o1")

	d.cache.EXPECT().Seen(ctx, key).Return(true, nil)

	exists, err := d.svc.CheckAndReserve(ctx, &mockTx{}, rule, domain.EntityOrder, "o1", time.Now())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLedger_ReserveNewEntry(t *testing.T) {
	d := setupLedger(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	now := time.Now().UTC()
	rule := &domain.Rule{ID: uuid.New(), TenantID: uuid.New()}
	key := domain.BuildLedgerKey(rule.TenantID, rule.ID, "o1")

	d.cache.EXPECT().Seen(ctx, key).Return(false, nil)
	d.repo.EXPECT().Reserve(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, e *domain.DedupLedgerEntry) (bool, error) {
			assert.Equal(t, rule.TenantID, e.TenantID)
			assert.Equal(t, rule.ID, e.RuleID)
			assert.Equal(t, domain.EntityOrder, e.EntityType)
			assert.Equal(t, "o1", e.EntityID)
			assert.Equal(t, now, e.CreatedAt)
			return true, nil
		})

	exists, err := d.svc.CheckAndReserve(ctx, tx, rule, domain.EntityOrder, "o1", now)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_ExistingRowBackfillsCache(t *testing.T) {
	d := setupLedger(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	rule := &domain.Rule{ID: uuid.New(), TenantID: uuid.New(), DedupeScope: domain.DedupeScopeDefault}
	key := domain.BuildLedgerKey(rule.TenantID, rule.ID, "o1")

	d.cache.EXPECT().Seen(ctx, key).Return(false, nil)
	d.repo.EXPECT().Reserve(ctx, gomock.Any(), gomock.Any()).Return(false, nil)
	d.cache.EXPECT().Remember(ctx, key, time.Hour).Return(nil)

	exists, err := d.svc.CheckAndReserve(ctx, &mockTx{}, rule, domain.EntityOrder, "o1", time.Now())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLedger_CacheErrorFallsBackToStore(t *testing.T) {
	d := setupLedger(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	rule := &domain.Rule{ID: uuid.New(), TenantID: uuid.New()}

	d.cache.EXPECT().Seen(ctx, gomock.Any()).Return(false, errors.New("redis down"))
	d.repo.EXPECT().Reserve(ctx, gomock.Any(), gomock.Any()).Return(true, nil)

	exists, err := d.svc.CheckAndReserve(ctx, &mockTx{}, rule, domain.EntityOrder, "o1", time.Now())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_StoreError(t *testing.T) {
	d := setupLedger(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	rule := &domain.Rule{ID: uuid.New(), TenantID: uuid.New()}

	d.cache.EXPECT().Seen(ctx, gomock.Any()).Return(false, nil)
	d.repo.EXPECT().Reserve(ctx, gomock.Any(), gomock.Any()).Return(false, errors.New("connection reset"))

	_, err := d.svc.CheckAndReserve(ctx, &mockTx{}, rule, domain.EntityOrder, "o1", time.Now())
	assert.Error(t, err)
}

func TestLedger_RememberErrorIsSwallowed(t *testing.T) {
	d := setupLedger(t)
	defer d.ctrl.Finish()

	tenantID, ruleID := uuid.New(), uuid.New()
	d.cache.EXPECT().Remember(gomock.Any(), domain.BuildLedgerKey(tenantID, ruleID, "o1"), time.Hour).Return(errors.New("redis down"))

	d.svc.Remember(context.Background(), tenantID, ruleID, "o1")
}

func TestLedger_NilCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockDedupLedgerRepository(ctrl)
	svc := NewLedgerService(repo, nil, 0, zerolog.Nop())
	repo.EXPECT().Reserve(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)

	rule := &domain.Rule{ID: uuid.New(), TenantID: uuid.New()}
	exists, err := svc.CheckAndReserve(context.Background(), &mockTx{}, rule, domain.EntityOrder, "o1", time.Now())
	require.NoError(t, err)
	assert.False(t, exists)
	svc.Remember(context.Background(), rule.TenantID, rule.ID, "o1")
}
