package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/payload"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/internal/core/ports/mocks"
	"storefront-notifier/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type schedulerTestDeps struct {
	svc           *SchedulerService
	events        *mocks.MockEventRepository
	rules         *mocks.MockRuleRepository
	notifications *mocks.MockNotificationRepository
	logs          *mocks.MockNotificationLogRepository
	ledgerRepo    *mocks.MockDedupLedgerRepository
	transactor    *mocks.MockDBTransactor
	matcher       *mocks.MockRuleMatcher
	ctrl          *gomock.Controller
	now           time.Time
}

func setupScheduler(t *testing.T) *schedulerTestDeps {
	ctrl := gomock.NewController(t)
	d := &schedulerTestDeps{
		events:        mocks.NewMockEventRepository(ctrl),
		rules:         mocks.NewMockRuleRepository(ctrl),
		notifications: mocks.NewMockNotificationRepository(ctrl),
		logs:          mocks.NewMockNotificationLogRepository(ctrl),
		ledgerRepo:    mocks.NewMockDedupLedgerRepository(ctrl),
		transactor:    mocks.NewMockDBTransactor(ctrl),
		matcher:       mocks.NewMockRuleMatcher(ctrl),
		ctrl:          ctrl,
		now:           time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC),
	}
	d.svc = NewSchedulerService(
		d.events, d.rules, d.notifications, d.logs, d.transactor, d.matcher,
		NewLedgerService(d.ledgerRepo, nil, 0, newTestLogger()),
		NewTemplateRenderer(),
		SchedulerConfig{DefaultLimit: 50, MaxAttempts: 3, DefaultChannel: domain.ChannelEmail, RecoveryWindow: 5 * time.Minute},
		newTestLogger(),
	)
	d.svc.now = func() time.Time { return d.now }
	return d
}

func paidEvent(tenantID uuid.UUID) domain.Event {
	return domain.Event{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EventType:  "payment_status_changed",
		Payload:    payload.Document{"order_id": "o1", "new_status": "paid", "customer_email": "ana@example.com", "customer_phone": "+55 11 91234-5678"},
		OccurredAt: time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC),
		Status:     domain.EventStatusPending,
	}
}

func TestScheduler_CreatesNotificationPerChannel(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	tenantID := uuid.New()
	ev := paidEvent(tenantID)
	rule := domain.Rule{
		ID: uuid.New(), TenantID: tenantID, RuleType: domain.RuleTypePayment, TriggerCondition: "paid",
		Channels:    []domain.Channel{domain.ChannelEmail, domain.ChannelWhatsApp},
		Templates:   map[domain.Channel]domain.Template{domain.ChannelEmail: {Subject: "Pedido {{order_number}}", Body: "Pago!"}},
		DelayAmount: 10, DelayUnit: domain.DelayUnitMinutes, Enabled: true,
	}
	match := ports.MatchResult{Matched: true, Condition: "paid", EntityType: domain.EntityOrder, EntityID: "o1"}

	d.events.EXPECT().RecoverStuck(ctx, d.now.Add(-5*time.Minute), (*uuid.UUID)(nil)).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, ports.EventListParams{Limit: 50}).Return([]domain.Event{ev}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev.ID, d.now).Return(true, nil)
	d.rules.EXPECT().ListEnabled(ctx, tenantID).Return([]domain.Rule{rule}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.matcher.EXPECT().Match(ctx, gomock.Any(), gomock.Any()).Return(match, nil)
	d.ledgerRepo.EXPECT().Reserve(ctx, tx, gomock.Any()).Return(true, nil)

	var created []*domain.Notification
	d.notifications.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, n *domain.Notification) (bool, error) {
			created = append(created, n)
			return true, nil
		}).Times(2)
	d.logs.EXPECT().Upsert(ctx, tx, gomock.Any()).Return(nil).Times(2)
	d.events.EXPECT().Finish(ctx, tx, ev.ID, domain.EventStatusProcessed).Return(nil)

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsFetched)
	assert.Equal(t, 1, stats.EventsProcessed)
	assert.Equal(t, 1, stats.RulesMatched)
	assert.Equal(t, 2, stats.NotificationsCreated)
	assert.Equal(t, 0, stats.Errors)

	require.Len(t, created, 2)
	email, wa := created[0], created[1]
	assert.Equal(t, domain.ChannelEmail, email.Channel)
	assert.Equal(t, "ana@example.com", email.Recipient)
	assert.Equal(t, "Pedido o1", email.RenderedPayload.Subject)
	assert.Equal(t, domain.NotificationStatusScheduled, email.Status)
	assert.Equal(t, 0, email.AttemptCount)
	assert.Equal(t, 3, email.MaxAttempts)
	assert.Equal(t, d.now.Add(10*time.Minute), email.ScheduledFor)
	assert.Equal(t, email.ScheduledFor, email.NextAttemptAt)
	assert.Equal(t, domain.BuildDedupeKey(tenantID, rule.ID, "o1", domain.ChannelEmail, "paid"), email.DedupeKey)

	assert.Equal(t, domain.ChannelWhatsApp, wa.Channel)
	assert.Equal(t, "+55 11 91234-5678", wa.Recipient)
	assert.NotEmpty(t, wa.RenderedPayload.Body, "missing template falls back to the default")
	assert.NotEqual(t, email.DedupeKey, wa.DedupeKey)
}

func TestScheduler_NoMatchIgnoresEvent(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	tenantID := uuid.New()
	ev := paidEvent(tenantID)
	rule := domain.Rule{ID: uuid.New(), TenantID: tenantID, RuleType: domain.RuleTypeShipping, Enabled: true}

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(2), nil)
	d.events.EXPECT().ListPending(ctx, gomock.Any()).Return([]domain.Event{ev}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev.ID, d.now).Return(true, nil)
	d.rules.EXPECT().ListEnabled(ctx, tenantID).Return([]domain.Rule{rule}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.matcher.EXPECT().Match(ctx, gomock.Any(), gomock.Any()).Return(ports.MatchResult{}, nil)
	d.events.EXPECT().Finish(ctx, tx, ev.ID, domain.EventStatusIgnored).Return(nil)

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsIgnored)
	assert.Equal(t, 0, stats.EventsProcessed)
	assert.Equal(t, 2, stats.EventsRecovered)
}

func TestScheduler_LedgerConflictSuppresses(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	tenantID := uuid.New()
	ev := paidEvent(tenantID)
	rule := domain.Rule{ID: uuid.New(), TenantID: tenantID, RuleType: domain.RuleTypePayment, TriggerCondition: "paid", Enabled: true}

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, gomock.Any()).Return([]domain.Event{ev}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev.ID, d.now).Return(true, nil)
	d.rules.EXPECT().ListEnabled(ctx, tenantID).Return([]domain.Rule{rule}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.matcher.EXPECT().Match(ctx, gomock.Any(), gomock.Any()).
		Return(ports.MatchResult{Matched: true, Condition: "paid", EntityType: domain.EntityOrder, EntityID: "o1"}, nil)
	d.ledgerRepo.EXPECT().Reserve(ctx, tx, gomock.Any()).Return(false, nil)
	d.events.EXPECT().Finish(ctx, tx, ev.ID, domain.EventStatusProcessed).Return(nil)

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RulesMatched)
	assert.Equal(t, 1, stats.LedgerConflicts)
	assert.Equal(t, 0, stats.NotificationsCreated)
	assert.Equal(t, 1, stats.EventsProcessed)
}

func TestScheduler_ExistingDedupeKeyIsNoop(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	tenantID := uuid.New()
	ev := paidEvent(tenantID)
	rule := domain.Rule{
		ID: uuid.New(), TenantID: tenantID, RuleType: domain.RuleTypePayment, TriggerCondition: "paid",
		DedupeScope: domain.DedupeScopeNone, Enabled: true,
	}

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, gomock.Any()).Return([]domain.Event{ev}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev.ID, d.now).Return(true, nil)
	d.rules.EXPECT().ListEnabled(ctx, tenantID).Return([]domain.Rule{rule}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.matcher.EXPECT().Match(ctx, gomock.Any(), gomock.Any()).
		Return(ports.MatchResult{Matched: true, Condition: "paid", EntityType: domain.EntityOrder, EntityID: "o1"}, nil)
	d.notifications.EXPECT().Create(ctx, tx, gomock.Any()).Return(false, nil)
	d.events.EXPECT().Finish(ctx, tx, ev.ID, domain.EventStatusProcessed).Return(nil)

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NotificationsCreated)
	assert.Equal(t, 0, stats.LedgerConflicts)
}

func TestScheduler_EventClaimedElsewhere(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ev := paidEvent(uuid.New())

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, gomock.Any()).Return([]domain.Event{ev}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev.ID, d.now).Return(false, nil)

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsFetched)
	assert.Equal(t, 0, stats.EventsProcessed)
	assert.Equal(t, 0, stats.EventsIgnored)
}

func TestScheduler_PerEventErrorReleasesEvent(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	tenantID := uuid.New()
	ev1, ev2 := paidEvent(tenantID), paidEvent(tenantID)
	rule := domain.Rule{ID: uuid.New(), TenantID: tenantID, RuleType: domain.RuleTypePayment, TriggerCondition: "paid", Enabled: true}

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, gomock.Any()).Return([]domain.Event{ev1, ev2}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev1.ID, d.now).Return(true, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev2.ID, d.now).Return(true, nil)
	// Rules are loaded once per tenant per batch.
	d.rules.EXPECT().ListEnabled(ctx, tenantID).Return([]domain.Rule{rule}, nil).Times(1)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)

	gomock.InOrder(
		d.matcher.EXPECT().Match(ctx, gomock.Any(), gomock.Any()).Return(ports.MatchResult{}, errors.New("lookup timeout")),
		d.matcher.EXPECT().Match(ctx, gomock.Any(), gomock.Any()).Return(ports.MatchResult{}, nil),
	)
	d.events.EXPECT().Release(ctx, ev1.ID).Return(nil)
	d.events.EXPECT().Finish(ctx, tx, ev2.ID, domain.EventStatusIgnored).Return(nil)

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.EventsIgnored)
}

func TestScheduler_ReleaseFailureAborts(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	ev := paidEvent(tenantID)

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, gomock.Any()).Return([]domain.Event{ev}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev.ID, d.now).Return(true, nil)
	d.rules.EXPECT().ListEnabled(ctx, tenantID).Return(nil, errors.New("db down"))
	d.events.EXPECT().Release(ctx, ev.ID).Return(errors.New("db down"))

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeStoreFailure, apperror.CodeOf(err))
	assert.Equal(t, 1, stats.Errors)
}

func TestScheduler_RecoveryScopedToTenant(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()

	d.events.EXPECT().RecoverStuck(ctx, d.now.Add(-5*time.Minute), &tenantID).Return(int64(1), nil)
	d.events.EXPECT().ListPending(ctx, ports.EventListParams{Limit: 5, TenantID: &tenantID}).Return(nil, nil)

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{Limit: 5, TenantID: &tenantID})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsRecovered)
}

func TestScheduler_ListFailureIsStoreFailure(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, ports.EventListParams{Limit: 5, TenantID: &tenantID}).Return(nil, errors.New("connection refused"))

	_, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{Limit: 5, TenantID: &tenantID})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeStoreFailure, apperror.CodeOf(err))
}

func TestScheduler_RecoverFailureIsStoreFailure(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	d.events.EXPECT().RecoverStuck(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), errors.New("connection refused"))

	_, err := d.svc.RunScheduleBatch(context.Background(), ports.BatchParams{})
	assert.Equal(t, apperror.CodeStoreFailure, apperror.CodeOf(err))
}

func TestScheduler_NoRecipientSkipsChannel(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	tenantID := uuid.New()
	ev := paidEvent(tenantID)
	delete(ev.Payload, "customer_phone")
	rule := domain.Rule{
		ID: uuid.New(), TenantID: tenantID, RuleType: domain.RuleTypePayment, TriggerCondition: "paid",
		Channels: []domain.Channel{domain.ChannelWhatsApp}, Enabled: true,
	}

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, gomock.Any()).Return([]domain.Event{ev}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev.ID, d.now).Return(true, nil)
	d.rules.EXPECT().ListEnabled(ctx, tenantID).Return([]domain.Rule{rule}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.matcher.EXPECT().Match(ctx, gomock.Any(), gomock.Any()).
		Return(ports.MatchResult{Matched: true, Condition: "paid", EntityType: domain.EntityOrder, EntityID: "o1"}, nil)
	d.ledgerRepo.EXPECT().Reserve(ctx, tx, gomock.Any()).Return(true, nil)
	d.events.EXPECT().Finish(ctx, tx, ev.ID, domain.EventStatusProcessed).Return(nil)

	stats, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NotificationsCreated)
	assert.Equal(t, 1, stats.RulesMatched)
}

func TestScheduler_RulesEvaluatedByPriority(t *testing.T) {
	d := setupScheduler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	tenantID := uuid.New()
	ev := paidEvent(tenantID)
	low := domain.Rule{ID: uuid.New(), TenantID: tenantID, Priority: 1, Enabled: true}
	high := domain.Rule{ID: uuid.New(), TenantID: tenantID, Priority: 10, Enabled: true}

	d.events.EXPECT().RecoverStuck(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)
	d.events.EXPECT().ListPending(ctx, gomock.Any()).Return([]domain.Event{ev}, nil)
	d.events.EXPECT().MarkProcessing(ctx, ev.ID, d.now).Return(true, nil)
	d.rules.EXPECT().ListEnabled(ctx, tenantID).Return([]domain.Rule{low, high}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)

	var order []uuid.UUID
	d.matcher.EXPECT().Match(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *domain.Event, r *domain.Rule) (ports.MatchResult, error) {
			order = append(order, r.ID)
			return ports.MatchResult{}, nil
		}).Times(2)
	d.events.EXPECT().Finish(ctx, tx, ev.ID, domain.EventStatusIgnored).Return(nil)

	_, err := d.svc.RunScheduleBatch(ctx, ports.BatchParams{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{high.ID, low.ID}, order)
}
