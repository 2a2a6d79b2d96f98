package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/echo-commerce-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/echo-commerce-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/echo-commerce-backend/api/controllers/webhooks"
	"github.com/angelmondragon/echo-commerce-backend/api/middleware"
	"github.com/angelmondragon/echo-commerce-backend/pkg/config"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/echo-commerce-backend/pkg/redis"
)

// Deps is everything the HTTP surface needs. A nil service answers 500 on
// its routes.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	Ready       map[string]controllers.Pinger
	Metrics     http.Handler
	Idempotency pkgredis.IdempotencyStore
	Ownership   middleware.OwnershipChecker

	Orders      ordercontrollers.OrderService
	Payments    ordercontrollers.PaymentService
	Fulfillment ordercontrollers.FulfillmentService

	StripeWebhooks  webhookcontrollers.StripeWebhookService
	StripeSigner    webhookcontrollers.StripeSigner
	StripeGuard     webhookcontrollers.DeliveryGuard
	ShopifyWebhooks webhookcontrollers.ShopifyWebhookService
	ShopifyGuard    webhookcontrollers.DeliveryGuard
	WebhookOutcomes webhookcontrollers.OutcomeRecorder
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.Tracing("echo-api"),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Ready))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// Provider callbacks authenticate by signature, not bearer token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhooks, d.StripeSigner, d.StripeGuard, d.WebhookOutcomes, logg))
		r.Post("/shopify", webhookcontrollers.ShopifyWebhook(d.ShopifyWebhooks, cfg.Shopify.WebhookSecret, d.ShopifyGuard, d.WebhookOutcomes, logg))
	})

	r.Route("/api/v1/businesses/{businessId}", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireBusinessOwnership(d.Ownership, logg))
		r.Use(middleware.Idempotency(d.Idempotency, logg))

		r.Get("/conversations/{conversationId}/orders", ordercontrollers.ListConversationOrders(d.Orders, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.CreateOrder(d.Orders, logg))
			r.Get("/", ordercontrollers.ListOrders(d.Orders, logg))
			r.Get("/by-number/{orderNumber}", ordercontrollers.GetOrderByNumber(d.Orders, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.GetOrder(d.Orders, logg))
				r.Post("/items", ordercontrollers.AddItem(d.Orders, logg))
				r.Patch("/items/{itemId}", ordercontrollers.UpdateItem(d.Orders, logg))
				r.Delete("/items/{itemId}", ordercontrollers.RemoveItem(d.Orders, logg))
				r.Put("/delivery", ordercontrollers.SetDelivery(d.Orders, logg))

				r.Put("/payment-method", ordercontrollers.SetPaymentMethod(d.Payments, logg))
				r.Post("/payment-link", ordercontrollers.GeneratePaymentLink(d.Payments, logg))
				r.Post("/confirm", ordercontrollers.ConfirmOrder(d.Payments, logg))

				r.Post("/prepare", ordercontrollers.PrepareOrder(d.Fulfillment, logg))
				r.Post("/ready", ordercontrollers.ReadyOrder(d.Fulfillment, logg))
				r.Post("/deliver", ordercontrollers.DeliverOrder(d.Fulfillment, logg))
				r.Post("/cancel", ordercontrollers.CancelOrder(d.Fulfillment, logg))
			})
		})
	})

	return r
}
