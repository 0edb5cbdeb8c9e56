package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/pkg/apperror"
	"storefront-notifier/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DispatcherConfig holds the delivery knobs.
type DispatcherConfig struct {
	DefaultLimit   int
	RecoveryWindow time.Duration
	SendTimeout    time.Duration
	Concurrency    int
}

// DispatcherService implements ports.DispatcherService.
type DispatcherService struct {
	notifications ports.NotificationRepository
	attempts      ports.AttemptRepository
	logs          ports.NotificationLogRepository
	events        ports.EventRepository
	senderConfigs ports.SenderConfigRepository
	systemSender  domain.SenderConfig
	senders       map[domain.Channel]ports.ChannelSender
	cfg           DispatcherConfig
	log           zerolog.Logger
	now           func() time.Time
}

// NewDispatcherService creates the delivery batch service.
func NewDispatcherService(
	notifications ports.NotificationRepository,
	attempts ports.AttemptRepository,
	logs ports.NotificationLogRepository,
	events ports.EventRepository,
	senderConfigs ports.SenderConfigRepository,
	systemSender domain.SenderConfig,
	senders []ports.ChannelSender,
	cfg DispatcherConfig,
	log zerolog.Logger,
) *DispatcherService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = 5 * time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	byChannel := make(map[domain.Channel]ports.ChannelSender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &DispatcherService{
		notifications: notifications,
		attempts:      attempts,
		logs:          logs,
		events:        events,
		senderConfigs: senderConfigs,
		systemSender:  systemSender,
		senders:       byChannel,
		cfg:           cfg,
		log:           logger.Component(log, "dispatcher"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type deliveryOutcome int

const (
	outcomeSent deliveryOutcome = iota
	outcomeRetry
	outcomeFailed
	outcomeLost
)

// RunDeliveryBatch recovers stuck sends, claims due notifications and
// delivers them. Store failures abort the batch; rows already claimed are
// picked up again by a later run's recovery step.
func (s *DispatcherService) RunDeliveryBatch(ctx context.Context, params ports.BatchParams) (*ports.DeliveryStats, error) {
	log := logger.Batch(s.log, uuid.NewString())
	stats := &ports.DeliveryStats{}

	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	// The claim timestamp is the fencing token, keep it at column precision.
	now := s.now().Truncate(time.Microsecond)

	if err := s.recover(ctx, now, params.TenantID, stats, log); err != nil {
		return stats, err
	}

	due, err := s.notifications.ListDue(ctx, ports.DueParams{Now: now, Limit: limit, TenantID: params.TenantID})
	if err != nil {
		return stats, apperror.ErrStoreFailure(fmt.Errorf("listing due notifications: %w", err))
	}
	if len(due) == 0 {
		return stats, nil
	}

	claimed, err := s.notifications.Claim(ctx, due, now)
	if err != nil {
		return stats, apperror.ErrStoreFailure(fmt.Errorf("claiming notifications: %w", err))
	}
	stats.ClaimedCount = len(claimed)
	if lost := len(due) - len(claimed); lost > 0 {
		log.Debug().Int("count", lost).Msg("notifications claimed by a concurrent dispatcher")
	}

	identities := NewSenderConfigCache(s.senderConfigs, s.systemSender)
	events := s.loadEvents(ctx, claimed, log)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for i := range claimed {
		n := &claimed[i]
		g.Go(func() error {
			outcome, err := s.deliver(ctx, n, now, identities, events[n.EventID], log)
			if err != nil {
				return fmt.Errorf("delivering notification %s: %w", n.ID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSent:
				stats.ProcessedSuccess++
			case outcomeRetry:
				stats.ProcessedError++
				stats.ScheduledRetries++
			case outcomeFailed:
				stats.ProcessedError++
				stats.FailedFinal++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, apperror.ErrStoreFailure(err)
	}

	log.Info().
		Int("claimed_count", stats.ClaimedCount).
		Int("processed_success", stats.ProcessedSuccess).
		Int("processed_error", stats.ProcessedError).
		Int("scheduled_retries", stats.ScheduledRetries).
		Int("failed_final", stats.FailedFinal).
		Int("unstuck_count", stats.UnstuckCount).
		Msg("delivery batch completed")

	return stats, nil
}

// recover resets sends interrupted longer than the recovery window, closes
// their dangling attempts and refreshes the notification log of each row.
func (s *DispatcherService) recover(ctx context.Context, now time.Time, tenantID *uuid.UUID, stats *ports.DeliveryStats, log zerolog.Logger) error {
	stuck, err := s.notifications.RecoverStuck(ctx, now.Add(-s.cfg.RecoveryWindow), now, tenantID)
	if err != nil {
		return apperror.ErrStoreFailure(fmt.Errorf("recovering stuck notifications: %w", err))
	}
	if len(stuck) == 0 {
		return nil
	}
	stats.UnstuckCount = len(stuck)

	ids := make([]uuid.UUID, len(stuck))
	for i := range stuck {
		ids[i] = stuck[i].ID
	}
	if _, err := s.attempts.AbandonPending(ctx, ids, now); err != nil {
		return apperror.ErrStoreFailure(fmt.Errorf("closing stuck attempts: %w", err))
	}

	events := s.loadEvents(ctx, stuck, log)
	for i := range stuck {
		n := &stuck[i]
		if n.Status == domain.NotificationStatusFailed {
			stats.FailedFinal++
		}
		if err := s.logs.Upsert(ctx, nil, domain.NewNotificationLog(n, events[n.EventID], now)); err != nil {
			return apperror.ErrStoreFailure(fmt.Errorf("writing notification log: %w", err))
		}
	}
	log.Warn().
		Int("count", len(stuck)).
		Int("failed_final", stats.FailedFinal).
		Msg("recovered notifications stuck in sending")
	return nil
}

// loadEvents fetches the business context used by the notification log.
// Missing events only cost log columns.
func (s *DispatcherService) loadEvents(ctx context.Context, claimed []domain.Notification, log zerolog.Logger) map[uuid.UUID]*domain.Event {
	events := make(map[uuid.UUID]*domain.Event)
	if s.events == nil {
		return events
	}
	for _, n := range claimed {
		if _, ok := events[n.EventID]; ok {
			continue
		}
		ev, err := s.events.GetByID(ctx, n.EventID)
		if err != nil {
			log.Warn().Err(err).Str("event_id", n.EventID.String()).Msg("failed to load event for notification log")
		}
		events[n.EventID] = ev
	}
	return events
}

// deliver performs one attempt for a claimed notification and persists the
// outcome under the claim fence.
func (s *DispatcherService) deliver(
	ctx context.Context,
	n *domain.Notification,
	claimedAt time.Time,
	identities ports.SenderConfigResolver,
	ev *domain.Event,
	log zerolog.Logger,
) (deliveryOutcome, error) {
	attemptNo := n.AttemptCount + 1
	attempt := &domain.Attempt{
		ID:             uuid.New(),
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		AttemptNo:      attemptNo,
		Status:         domain.AttemptStatusPending,
		StartedAt:      s.now(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return 0, fmt.Errorf("creating attempt: %w", err)
	}

	result := s.send(ctx, n, identities)

	finished := s.now()
	attempt.FinishedAt = &finished
	if result.ProviderResponse != "" {
		attempt.ProviderResponse = &result.ProviderResponse
	}
	n.AttemptCount = attemptNo
	n.UpdatedAt = finished

	var outcome deliveryOutcome
	if result.Success {
		outcome = outcomeSent
		attempt.Status = domain.AttemptStatusSuccess
		n.Status = domain.NotificationStatusSent
		n.SentAt = &finished
		n.LastError = nil
	} else {
		msg := result.Error
		if msg == "" {
			msg = "send failed"
		}
		attempt.Status = domain.AttemptStatusError
		if code := result.ErrorCode; code != "" {
			attempt.ErrorCode = &code
		}
		attempt.ErrorMessage = &msg
		n.LastError = &msg
		if n.Exhausted(attemptNo) {
			outcome = outcomeFailed
			n.Status = domain.NotificationStatusFailed
		} else {
			outcome = outcomeRetry
			n.Status = domain.NotificationStatusRetrying
			n.NextAttemptAt = finished.Add(domain.RetryBackoff(attemptNo))
		}
	}

	if err := s.attempts.Finish(ctx, attempt); err != nil {
		return 0, fmt.Errorf("finishing attempt: %w", err)
	}

	applied, err := s.notifications.Complete(ctx, n, claimedAt)
	if err != nil {
		return 0, fmt.Errorf("completing notification: %w", err)
	}
	if !applied {
		log.Warn().
			Str("notification_id", n.ID.String()).
			Int("attempt_no", attemptNo).
			Msg("claim superseded by recovery, outcome not applied")
		return outcomeLost, nil
	}

	if err := s.logs.Upsert(ctx, nil, domain.NewNotificationLog(n, ev, finished)); err != nil {
		return 0, fmt.Errorf("writing notification log: %w", err)
	}

	evt := log.Info()
	if !result.Success {
		evt = log.Warn().Str("error_code", result.ErrorCode).Str("error", result.Error)
	}
	evt.Str("notification_id", n.ID.String()).
		Str("tenant_id", n.TenantID.String()).
		Str("channel", string(n.Channel)).
		Int("attempt_no", attemptNo).
		Str("status", string(n.Status)).
		Msg("delivery attempt finished")

	return outcome, nil
}

func (s *DispatcherService) send(ctx context.Context, n *domain.Notification, identities ports.SenderConfigResolver) ports.SendResult {
	sender, ok := s.senders[n.Channel]
	if !ok {
		appErr := apperror.ErrNoSenderForChannel(string(n.Channel))
		return ports.SendResult{ErrorCode: appErr.Code, Error: appErr.Message}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return sender.Send(sendCtx, ports.SendRequest{
		TenantID:       n.TenantID,
		NotificationID: n.ID,
		Recipient:      n.Recipient,
		Content:        n.RenderedPayload,
		Identities:     identities,
	})
}
