package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/pkg/apperror"
	"storefront-notifier/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SchedulerConfig holds the scheduling knobs.
type SchedulerConfig struct {
	DefaultLimit   int
	MaxAttempts    int
	DefaultChannel domain.Channel
	RecoveryWindow time.Duration
}

// SchedulerService implements ports.SchedulerService.
type SchedulerService struct {
	events        ports.EventRepository
	rules         ports.RuleRepository
	notifications ports.NotificationRepository
	logs          ports.NotificationLogRepository
	transactor    ports.DBTransactor
	matcher       ports.RuleMatcher
	ledger        *LedgerService
	renderer      *TemplateRenderer
	cfg           SchedulerConfig
	log           zerolog.Logger
	now           func() time.Time
}

// NewSchedulerService creates the match-and-schedule batch service.
func NewSchedulerService(
	events ports.EventRepository,
	rules ports.RuleRepository,
	notifications ports.NotificationRepository,
	logs ports.NotificationLogRepository,
	transactor ports.DBTransactor,
	matcher ports.RuleMatcher,
	ledger *LedgerService,
	renderer *TemplateRenderer,
	cfg SchedulerConfig,
	log zerolog.Logger,
) *SchedulerService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = domain.ChannelEmail
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = 5 * time.Minute
	}
	return &SchedulerService{
		events:        events,
		rules:         rules,
		notifications: notifications,
		logs:          logs,
		transactor:    transactor,
		matcher:       matcher,
		ledger:        ledger,
		renderer:      renderer,
		cfg:           cfg,
		log:           logger.Component(log, "scheduler"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// eventOutcome is the per-event contribution to the batch stats.
type eventOutcome struct {
	matched   int
	created   int
	conflicts int
}

// ledgerMark is a reservation to mirror into the cache after commit.
type ledgerMark struct {
	tenantID, ruleID uuid.UUID
	entityID         string
}

// RunScheduleBatch matches pending events against their tenant's rules and
// writes scheduled notifications. Store failures on the event queue abort the
// batch; a failure while scheduling one event releases that event for the
// next run and is counted in Errors.
func (s *SchedulerService) RunScheduleBatch(ctx context.Context, params ports.BatchParams) (*ports.ScheduleStats, error) {
	log := logger.Batch(s.log, uuid.NewString())
	stats := &ports.ScheduleStats{}

	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	now := s.now()

	recovered, err := s.events.RecoverStuck(ctx, now.Add(-s.cfg.RecoveryWindow), params.TenantID)
	if err != nil {
		return stats, apperror.ErrStoreFailure(fmt.Errorf("recovering stuck events: %w", err))
	}
	stats.EventsRecovered = int(recovered)

	events, err := s.events.ListPending(ctx, ports.EventListParams{Limit: limit, TenantID: params.TenantID})
	if err != nil {
		return stats, apperror.ErrStoreFailure(fmt.Errorf("listing pending events: %w", err))
	}
	stats.EventsFetched = len(events)

	rulesByTenant := make(map[uuid.UUID][]domain.Rule)

	for i := range events {
		ev := &events[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		claimed, err := s.events.MarkProcessing(ctx, ev.ID, now)
		if err != nil {
			return stats, apperror.ErrStoreFailure(fmt.Errorf("claiming event %s: %w", ev.ID, err))
		}
		if !claimed {
			log.Debug().Str("event_id", ev.ID.String()).Msg("event claimed by another scheduler")
			continue
		}

		out, status, err := s.processEvent(ctx, ev, rulesByTenant, now, log)
		if err != nil {
			stats.Errors++
			log.Error().Err(err).
				Str("event_id", ev.ID.String()).
				Str("tenant_id", ev.TenantID.String()).
				Msg("failed to schedule event, releasing")
			if relErr := s.events.Release(ctx, ev.ID); relErr != nil {
				return stats, apperror.ErrStoreFailure(fmt.Errorf("releasing event %s: %w", ev.ID, relErr))
			}
			continue
		}

		stats.RulesMatched += out.matched
		stats.NotificationsCreated += out.created
		stats.LedgerConflicts += out.conflicts
		if status == domain.EventStatusIgnored {
			stats.EventsIgnored++
		} else {
			stats.EventsProcessed++
		}
	}

	log.Info().
		Int("events_fetched", stats.EventsFetched).
		Int("events_processed", stats.EventsProcessed).
		Int("events_ignored", stats.EventsIgnored).
		Int("rules_matched", stats.RulesMatched).
		Int("notifications_created", stats.NotificationsCreated).
		Int("ledger_conflicts", stats.LedgerConflicts).
		Int("errors", stats.Errors).
		Msg("schedule batch completed")

	return stats, nil
}

func (s *SchedulerService) rulesFor(ctx context.Context, tenantID uuid.UUID, cache map[uuid.UUID][]domain.Rule) ([]domain.Rule, error) {
	if rules, ok := cache[tenantID]; ok {
		return rules, nil
	}
	rules, err := s.rules.ListEnabled(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	cache[tenantID] = rules
	return rules, nil
}

// processEvent schedules every matching rule of one event in a single
// transaction together with the event's final status.
func (s *SchedulerService) processEvent(
	ctx context.Context,
	ev *domain.Event,
	rulesByTenant map[uuid.UUID][]domain.Rule,
	now time.Time,
	log zerolog.Logger,
) (eventOutcome, domain.EventStatus, error) {
	var out eventOutcome

	rules, err := s.rulesFor(ctx, ev.TenantID, rulesByTenant)
	if err != nil {
		return out, "", err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return out, "", fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	var marks []ledgerMark
	for i := range rules {
		rule := &rules[i]

		res, err := s.matcher.Match(ctx, ev, rule)
		if err != nil {
			return out, "", fmt.Errorf("matching rule %s: %w", rule.ID, err)
		}
		if !res.Matched {
			continue
		}
		out.matched++

		exists, err := s.ledger.CheckAndReserve(ctx, dbTx, rule, res.EntityType, res.EntityID, now)
		if err != nil {
			return out, "", err
		}
		if exists {
			out.conflicts++
			log.Debug().
				Str("event_id", ev.ID.String()).
				Str("rule_id", rule.ID.String()).
				Str("entity_id", res.EntityID).
				Msg("already notified for entity, suppressed")
			continue
		}

		created, err := s.scheduleRule(ctx, dbTx, ev, rule, res, now, log)
		if err != nil {
			return out, "", err
		}
		out.created += created
		if rule.DedupeScope.Enabled() {
			marks = append(marks, ledgerMark{tenantID: rule.TenantID, ruleID: rule.ID, entityID: res.EntityID})
		}
	}

	status := domain.EventStatusProcessed
	if out.matched == 0 {
		status = domain.EventStatusIgnored
	}
	if err := s.events.Finish(ctx, dbTx, ev.ID, status); err != nil {
		return out, "", fmt.Errorf("finishing event: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return out, "", fmt.Errorf("commit tx: %w", err)
	}

	for _, m := range marks {
		s.ledger.Remember(ctx, m.tenantID, m.ruleID, m.entityID)
	}
	return out, status, nil
}

// scheduleRule writes one notification per deliverable channel of a matched rule.
func (s *SchedulerService) scheduleRule(
	ctx context.Context,
	dbTx pgx.Tx,
	ev *domain.Event,
	rule *domain.Rule,
	res ports.MatchResult,
	now time.Time,
	log zerolog.Logger,
) (int, error) {
	delay, ok := rule.Delay()
	if !ok {
		log.Warn().
			Str("rule_id", rule.ID.String()).
			Str("delay_unit", string(rule.DelayUnit)).
			Msg("unknown delay unit, sending without delay")
	}
	scheduledFor := now.Add(delay)
	tc := BuildTemplateContext(ev)

	created := 0
	for _, ch := range rule.DeliveryChannels(s.cfg.DefaultChannel) {
		recipient := recipientFor(ch, ev)
		if recipient == "" {
			log.Debug().
				Str("event_id", ev.ID.String()).
				Str("rule_id", rule.ID.String()).
				Str("channel", string(ch)).
				Msg("no recipient for channel, skipping")
			continue
		}

		tpl, ok := rule.TemplateFor(ch)
		if !ok {
			tpl = DefaultTemplate(rule.RuleType, res.Condition, ch)
		}
		content, gaps := s.renderer.Render(tpl, tc)
		if len(gaps) > 0 {
			log.Warn().
				Str("rule_id", rule.ID.String()).
				Str("channel", string(ch)).
				Strs("placeholders", gaps).
				Msg("template placeholders left unresolved")
		}

		n := &domain.Notification{
			ID:              uuid.New(),
			TenantID:        ev.TenantID,
			EventID:         ev.ID,
			RuleID:          rule.ID,
			Channel:         ch,
			Recipient:       recipient,
			RenderedPayload: content,
			Status:          domain.NotificationStatusScheduled,
			EntityType:      res.EntityType,
			EntityID:        res.EntityID,
			ScheduledFor:    scheduledFor,
			NextAttemptAt:   scheduledFor,
			AttemptCount:    0,
			MaxAttempts:     s.cfg.MaxAttempts,
			DedupeKey:       domain.BuildDedupeKey(ev.TenantID, rule.ID, res.EntityID, ch, res.Condition),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		inserted, err := s.notifications.Create(ctx, dbTx, n)
		if err != nil {
			return created, fmt.Errorf("creating notification: %w", err)
		}
		if !inserted {
			log.Debug().Str("dedupe_key", n.DedupeKey).Msg("notification already exists")
			continue
		}
		if err := s.logs.Upsert(ctx, dbTx, domain.NewNotificationLog(n, ev, now)); err != nil {
			return created, fmt.Errorf("writing notification log: %w", err)
		}
		created++
	}
	return created, nil
}

func recipientFor(ch domain.Channel, ev *domain.Event) string {
	switch ch {
	case domain.ChannelEmail:
		return ev.CustomerEmail()
	case domain.ChannelWhatsApp:
		return ev.CustomerPhone()
	default:
		return ""
	}
}
