package main

import (
	"context"
	"fmt"
	"net/http"

	"storefront-notifier/config"
	"storefront-notifier/internal/adapter/channel"
	pgStorage "storefront-notifier/internal/adapter/storage/postgres"
	redisStorage "storefront-notifier/internal/adapter/storage/redis"
	"storefront-notifier/internal/core/domain"
	"storefront-notifier/internal/core/ports"
	"storefront-notifier/internal/service"
	"storefront-notifier/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app is the fully wired pipeline shared by every command.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	pool       *pgxpool.Pool
	rdb        *goredis.Client
	scheduler  *service.SchedulerService
	dispatcher *service.DispatcherService
	query      ports.NotificationQueryService
	tokens     *service.JWTTokenService
	rateLimits *redisStorage.RateLimitStore
	health     []ports.HealthChecker
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	// Repositories
	eventRepo := pgStorage.NewEventRepo(pool)
	ruleRepo := pgStorage.NewRuleRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	notificationRepo := pgStorage.NewNotificationRepo(pool)
	attemptRepo := pgStorage.NewAttemptRepository(pool)
	logRepo := pgStorage.NewNotificationLogRepository(pool)
	senderConfigRepo := pgStorage.NewSenderConfigRepo(pool)
	orderLookup := pgStorage.NewOrderLookup(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Matching and scheduling
	payment := service.DefaultPaymentConditions().WithOverrides(cfg.Matching.PaymentConditions)
	shipping := service.DefaultShippingConditions().WithOverrides(cfg.Matching.ShippingConditions)
	matcher := service.NewMatcherService(payment, shipping, orderLookup, log)
	ledger := service.NewLedgerService(ledgerRepo, redisStorage.NewLedgerCache(rdb), cfg.Pipeline.LedgerCacheTTL, log)

	scheduler := service.NewSchedulerService(
		eventRepo,
		ruleRepo,
		notificationRepo,
		logRepo,
		transactor,
		matcher,
		ledger,
		service.NewTemplateRenderer(),
		service.SchedulerConfig{
			DefaultLimit:   cfg.Pipeline.ScheduleLimit,
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			DefaultChannel: domain.Channel(cfg.Pipeline.DefaultChannel),
			RecoveryWindow: cfg.Pipeline.RecoveryWindow,
		},
		log,
	)

	// Delivery
	httpClient := &http.Client{Timeout: cfg.Pipeline.SendTimeout}
	senders := []ports.ChannelSender{
		channel.NewEmailSender(channel.EmailConfig{
			APIURL: cfg.Email.APIURL,
			APIKey: cfg.Email.APIKey,
		}, httpClient, log),
		channel.NewWhatsAppSender(channel.WhatsAppConfig{
			APIURL:        cfg.WhatsApp.APIURL,
			APIKey:        cfg.WhatsApp.APIKey,
			SigningSecret: cfg.WhatsApp.SigningSecret,
		}, service.NewHMACSignatureService(), httpClient, log),
	}
	systemSender := domain.SenderConfig{
		FromName:       cfg.Email.FromName,
		FromAddress:    cfg.Email.FromAddress,
		ReplyTo:        cfg.Email.ReplyTo,
		Verified:       cfg.Email.Verified,
		VerifiedDomain: cfg.Email.VerifiedDomain,
	}

	dispatcher := service.NewDispatcherService(
		notificationRepo,
		attemptRepo,
		logRepo,
		eventRepo,
		senderConfigRepo,
		systemSender,
		senders,
		service.DispatcherConfig{
			DefaultLimit:   cfg.Pipeline.DeliverLimit,
			RecoveryWindow: cfg.Pipeline.RecoveryWindow,
			SendTimeout:    cfg.Pipeline.SendTimeout,
			Concurrency:    cfg.Pipeline.Concurrency,
		},
		log,
	)

	return &app{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		rdb:        rdb,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		query:      service.NewNotificationQueryService(notificationRepo, attemptRepo),
		tokens:     service.NewJWTTokenService(cfg.Auth.Secret, cfg.Auth.Expiry, cfg.Auth.Issuer),
		rateLimits: redisStorage.NewRateLimitStore(rdb),
		health: []ports.HealthChecker{
			pgStorage.NewHealthCheck(pool),
			redisStorage.NewHealthCheck(rdb),
		},
	}, nil
}

func (a *app) Close() {
	if err := a.rdb.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing redis client")
	}
	a.pool.Close()
}
