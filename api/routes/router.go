package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/escrow-backend/api/controllers"
	disputecontrollers "github.com/angelmondragon/escrow-backend/api/controllers/disputes"
	ordercontrollers "github.com/angelmondragon/escrow-backend/api/controllers/orders"
	payoutcontrollers "github.com/angelmondragon/escrow-backend/api/controllers/payouts"
	webhookcontrollers "github.com/angelmondragon/escrow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/escrow-backend/api/middleware"
	"github.com/angelmondragon/escrow-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/escrow-backend/internal/checkout"
	"github.com/angelmondragon/escrow-backend/internal/disputes"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/internal/orders"
	"github.com/angelmondragon/escrow-backend/internal/payments"
	"github.com/angelmondragon/escrow-backend/internal/payouts"
	"github.com/angelmondragon/escrow-backend/internal/products"
	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/idempotency"
)

// requestStore backs request idempotency and rate limiting.
type requestStore interface {
	middleware.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	Readiness   map[string]controllers.Pinger
	Store       requestStore
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Products      products.Service
	Cart          cart.Service
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Disputes      disputes.Service
	Payments      payments.Service
	Payouts       payouts.Service
	Notifications notifications.Service

	PaystackWebhook      webhookcontrollers.PaystackWebhookService
	PaystackWebhookGuard *idempotency.Guard
}

var (
	walletRoles = []enums.Role{enums.RoleBuyer, enums.RoleVendor, enums.RoleAgent}
	sellerRoles = []enums.Role{enums.RoleVendor, enums.RoleAgent}
	staffRoles  = []enums.Role{enums.RoleSupport, enums.RoleAdmin}
)

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.RateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Readiness, logg))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, deps.Store, logg))
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(deps.PaystackWebhook, cfg.Paystack.SecretKey, deps.PaystackWebhookGuard, logg))
	})

	r.Get("/api/v1/products/{productId}", controllers.GetProduct(deps.Products, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(apiPolicy, deps.Store, logg))
		r.Use(middleware.Idempotency(deps.Store, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(deps.Products, logg))
			r.With(middleware.RequireRole(logg, sellerRoles...)).Post("/", controllers.CreateProduct(deps.Products, logg))
			r.With(middleware.RequireRole(logg, sellerRoles...)).Post("/{productId}/restock", controllers.RestockProduct(deps.Products, logg))
			r.With(middleware.RequireRole(logg, sellerRoles...)).Post("/{productId}/price", controllers.RepriceProduct(deps.Products, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleBuyer))
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.GetCart(deps.Cart, logg))
				r.Post("/items", controllers.AddCartItem(deps.Cart, logg))
				r.Delete("/items/{productId}", controllers.RemoveCartItem(deps.Cart, logg))
			})
			r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, walletRoles...))
			r.Get("/wallet", controllers.GetWallet(deps.Payments, logg))
			r.Post("/wallet/fund", controllers.FundWallet(deps.Payments, logg))
			r.Get("/payments/verify/{reference}", controllers.VerifyPayment(deps.Payments, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, sellerRoles...))
				r.Post("/{orderId}/accept", ordercontrollers.Accept(deps.Orders, logg))
				r.Post("/{orderId}/reject", ordercontrollers.Reject(deps.Orders, logg))
				r.Post("/{orderId}/advance", ordercontrollers.Advance(deps.Orders, logg))
			})
			r.With(middleware.RequireRole(logg, enums.RoleBuyer)).Post("/{orderId}/confirm", ordercontrollers.ConfirmDelivery(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, walletRoles...)).Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", disputecontrollers.List(deps.Disputes, logg))
			r.Get("/{disputeId}", disputecontrollers.Detail(deps.Disputes, logg))
			r.With(middleware.RequireRole(logg, walletRoles...)).Post("/", disputecontrollers.Open(deps.Disputes, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, staffRoles...))
				r.Post("/{disputeId}/assign", disputecontrollers.Assign(deps.Disputes, logg))
				r.Post("/{disputeId}/transition", disputecontrollers.Transition(deps.Disputes, logg))
				r.Post("/{disputeId}/resolve", disputecontrollers.Resolve(deps.Disputes, logg))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, sellerRoles...))
			r.Get("/banks", payoutcontrollers.ListBanks(deps.Payouts, logg))
			r.Get("/bank-accounts", payoutcontrollers.ListBankAccounts(deps.Payouts, logg))
			r.Post("/bank-accounts", payoutcontrollers.RegisterBankAccount(deps.Payouts, logg))
			r.Get("/payouts", payoutcontrollers.ListPayouts(deps.Payouts, logg))
			r.Post("/payouts", payoutcontrollers.RequestPayout(deps.Payouts, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}
