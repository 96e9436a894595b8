package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/escrow-backend/internal/cron"
	"github.com/angelmondragon/escrow-backend/internal/disputes"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/internal/orders"
	"github.com/angelmondragon/escrow-backend/pkg/bigquery"
	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/migrate"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	notificationRepo := notifications.NewRepository(dbClient.DB())
	events := outbox.NewService(outboxRepo, logg)
	dispatcher, err := notifications.NewDispatcher(dbClient, notificationRepo, events, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}
	defer dispatcher.Wait()

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orders.ServiceParams{
		DB:       dbClient,
		Repo:     orderRepo,
		Ledger:   ledgerService,
		Notifier: dispatcher,
		Events:   events,
		Metrics:  ledgerMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	disputeService, err := disputes.NewService(disputes.ServiceParams{
		DB:       dbClient,
		Repo:     disputes.NewRepository(dbClient.DB()),
		Orders:   orderRepo,
		Ledger:   ledgerService,
		Notifier: dispatcher,
		Events:   events,
		Metrics:  ledgerMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create disputes service", err)
		os.Exit(1)
	}

	registry, _ := cron.NewRegistry()
	mustRegister(logg, registry)(cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger:    logg,
		Orders:    orderRepo,
		Expirer:   orderService,
		TTL:       cfg.Cron.PendingOrderTTL,
		BatchSize: cfg.Cron.ExpiryBatch,
	}))
	mustRegister(logg, registry)(cron.NewDisputeAssignmentJob(cron.DisputeAssignmentJobParams{
		Logger:    logg,
		Disputes:  disputeService,
		BatchSize: cfg.Dispute.AssignmentBatchSize,
	}))
	mustRegister(logg, registry)(cron.NewRetentionJob(logg,
		cron.Sweep{Name: "notifications", Retention: cfg.Cron.NotificationRetention, Delete: notificationRepo.DeleteReadBefore},
		cron.TxSweep("outbox", cfg.Cron.OutboxRetention, dbClient, outboxRepo.DeletePublishedBefore),
		cron.TxSweep("outbox_dlq", cfg.Cron.DLQRetention, dbClient, outbox.NewDLQRepository(dbClient.DB()).DeleteBefore),
	))

	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		mustRegister(logg, registry)(cron.NewLedgerExportJob(cron.LedgerExportJobParams{
			Logger:    logg,
			Store:     cron.NewLedgerExportStore(dbClient.DB()),
			Sink:      bqClient,
			BatchSize: cfg.Cron.LedgerExportBatch,
		}))
	} else {
		logg.Warn(context.Background(), "gcp project not configured, ledger export disabled")
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Jobs()),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func mustRegister(logg *logger.Logger, registry *cron.Registry) func(cron.Job, error) {
	return func(job cron.Job, err error) {
		if err != nil {
			logg.Error(context.Background(), "failed to create cron job", err)
			os.Exit(1)
		}
		if err := registry.Register(job); err != nil {
			logg.Error(context.Background(), "failed to register cron job", err)
			os.Exit(1)
		}
	}
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
