package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/escrow-backend/api/controllers"
	"github.com/angelmondragon/escrow-backend/api/routes"
	"github.com/angelmondragon/escrow-backend/internal/cart"
	"github.com/angelmondragon/escrow-backend/internal/checkout"
	"github.com/angelmondragon/escrow-backend/internal/disputes"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/internal/orders"
	"github.com/angelmondragon/escrow-backend/internal/payments"
	"github.com/angelmondragon/escrow-backend/internal/payouts"
	"github.com/angelmondragon/escrow-backend/internal/products"
	paystackwebhook "github.com/angelmondragon/escrow-backend/internal/webhooks/paystack"
	"github.com/angelmondragon/escrow-backend/pkg/cache"
	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/env"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/migrate"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/escrow-backend/pkg/paystack"
	"github.com/angelmondragon/escrow-backend/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	paystackClient, err := paystack.NewClient(cfg.Paystack.SecretKey,
		paystack.WithBaseURL(cfg.Paystack.BaseURL),
		paystack.WithTimeout(cfg.Paystack.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	notificationRepo := notifications.NewRepository(dbClient.DB())
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	dispatcher, err := notifications.NewDispatcher(dbClient, notificationRepo, events, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}
	defer dispatcher.Wait()

	notificationService, err := notifications.NewService(notificationRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	productRepo := products.NewRepository(dbClient.DB())
	productService, err := products.NewService(productRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	cartRepo := cart.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cartRepo, productRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
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

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		DB:       dbClient,
		Cart:     cartRepo,
		Orders:   orderRepo,
		Ledger:   ledgerService,
		Notifier: dispatcher,
		Metrics:  ledgerMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
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

	paymentService, err := payments.NewService(payments.ServiceParams{
		DB:          dbClient,
		Ledger:      ledgerService,
		Gateway:     paystackClient,
		Notifier:    dispatcher,
		Metrics:     ledgerMetrics,
		Logger:      logg,
		Timeout:     cfg.Paystack.Timeout,
		CallbackURL: cfg.Paystack.CallbackURL,
		Currency:    cfg.Paystack.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	bankCache, err := cache.New[[]paystack.Bank](redisClient, redisClient.CacheKey("banks", cfg.BankCache.Country), cfg.BankCache.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create bank cache", err)
		os.Exit(1)
	}

	payoutService, err := payouts.NewService(payouts.ServiceParams{
		DB:        dbClient,
		Repo:      payouts.NewRepository(dbClient.DB()),
		Ledger:    ledgerService,
		Gateway:   paystackClient,
		Limiter:   redisClient,
		BankCache: bankCache,
		Notifier:  dispatcher,
		Events:    events,
		Metrics:   ledgerMetrics,
		Logger:    logg,
		Config:    cfg.Payout,
		Country:   cfg.BankCache.Country,
		Timeout:   cfg.Paystack.Timeout,
		Currency:  cfg.Paystack.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	webhookService, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{
		Payments: paymentService,
		Payouts:  payoutService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewGuard(redisClient, "paystack-webhook", cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack webhook guard", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Readiness: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Store:                redisClient,
		Gatherer:             prometheus.DefaultGatherer,
		HTTPMetrics:          metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Products:             productService,
		Cart:                 cartService,
		Checkout:             checkoutService,
		Orders:               orderService,
		Disputes:             disputeService,
		Payments:             paymentService,
		Payouts:              payoutService,
		Notifications:        notificationService,
		PaystackWebhook:      webhookService,
		PaystackWebhookGuard: webhookGuard,
	})

	addr := ":" + env.Get("PORT", cfg.App.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
