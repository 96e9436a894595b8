package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/migrate"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/registry"
	"github.com/angelmondragon/escrow-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	requeue := flag.String("requeue", "", "event id of a dead-lettered outbox row to hand back to the relay, then exit")
	flag.Parse()
	if err := run(*requeue); err != nil {
		os.Exit(1)
	}
}

func run(requeueID string) error {
	bootCtx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(bootCtx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(bootCtx, "failed to load config", err)
		return err
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(bootCtx, "failed to build event registry", err)
		return err
	}

	dbClient, err := db.New(bootCtx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap database", err)
		return err
	}
	defer closeWithLog(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		logg.Error(bootCtx, "failed to run dev migrations", err)
		return err
	}

	if requeueID != "" {
		return requeueDeadLetter(bootCtx, logg, dbClient, requeueID)
	}

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg,
		pubsub.WithTopics(events.Topics()...),
		pubsub.WithOrdering(),
	)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap pubsub", err)
		return err
	}
	defer closeWithLog(logg, "pubsub client", pubsubClient.Close)

	relay, err := NewService(ServiceParams{
		Config:        cfg.Outbox,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Registry:      events,
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(bootCtx, "failed to create outbox publisher", err)
		return err
	}

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
	})

	metricsSrv := serveMetrics(ctx, logg, cfg.Outbox.MetricsAddr)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting outbox publisher")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

func requeueDeadLetter(ctx context.Context, logg *logger.Logger, dbClient *db.Client, raw string) error {
	eventID, err := uuid.Parse(raw)
	if err != nil {
		logg.Error(ctx, "invalid requeue event id", err)
		return err
	}
	ctx = logg.WithField(ctx, "event_id", eventID.String())
	conn := dbClient.DB()
	if err := outbox.NewDLQRepository(conn).Requeue(ctx, outbox.NewRepository(conn), eventID); err != nil {
		logg.Error(ctx, "failed to requeue dead letter", err)
		return err
	}
	logg.Info(ctx, "dead letter requeued")
	return nil
}

// serveMetrics exposes the relay counters for scraping. A listener failure is
// logged and does not stop the relay.
func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	return srv
}

func closeWithLog(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
