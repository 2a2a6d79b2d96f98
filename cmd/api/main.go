package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/echo-commerce-backend/api"
	"github.com/angelmondragon/echo-commerce-backend/api/controllers"
	"github.com/angelmondragon/echo-commerce-backend/api/routes"
	"github.com/angelmondragon/echo-commerce-backend/internal/businesses"
	"github.com/angelmondragon/echo-commerce-backend/internal/catalog"
	"github.com/angelmondragon/echo-commerce-backend/internal/fulfillment"
	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/internal/payments"
	"github.com/angelmondragon/echo-commerce-backend/internal/webhooks"
	shopifywebhook "github.com/angelmondragon/echo-commerce-backend/internal/webhooks/shopify"
	stripewebhook "github.com/angelmondragon/echo-commerce-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/echo-commerce-backend/pkg/config"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/metrics"
	"github.com/angelmondragon/echo-commerce-backend/pkg/migrate"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/redis"
	"github.com/angelmondragon/echo-commerce-backend/pkg/shopify"
	"github.com/angelmondragon/echo-commerce-backend/pkg/stripe"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	commerceMetrics := metrics.NewCommerceMetrics(prometheus.DefaultRegisterer)

	conn := dbClient.DB()
	orderRepo := orders.NewRepository(conn)
	businessRepo := businesses.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:       orderRepo,
		Businesses: businessRepo,
		Catalog:    catalog.NewSnapshotter(catalog.NewRepository(conn)),
		Numbers:    orders.NewAllocator(redisClient, orderRepo),
		Tx:         dbClient,
		Outbox:     outboxSvc,
		Logger:     logg,
	})
	requireResource(ctx, logg, "orders service", err)

	shops := shopify.NewFactory(cfg.Shopify, logg)
	marketplace := payments.NewMarketplace(businessRepo, func(shopDomain, token string) (payments.DraftOrderCreator, error) {
		return shops.ForShop(shopDomain, token)
	}, cfg.Checkout.LinkTTL)

	var (
		hosted       payments.Variant
		stripeClient *stripe.Client
	)
	if cfg.Stripe.Enabled() {
		stripeClient, err = stripe.NewClient(ctx, cfg.Stripe, logg)
		requireResource(ctx, logg, "stripe client", err)
		hosted = payments.NewHostedCheckout(stripeClient, cfg.Checkout.LinkTTL)
	} else {
		logg.Warn(ctx, "stripe not configured; hosted checkout fallback disabled")
	}

	paymentParams := payments.ServiceParams{
		Orders:       orderRepo,
		Confirmer:    orderSvc,
		Orchestrator: payments.NewOrchestrator(marketplace, hosted, logg),
		Tx:           dbClient,
		Limiter:      redisClient,
		Metrics:      commerceMetrics,
		Logger:       logg,
		LinkLimit:    cfg.Checkout.LinkRateLimit,
		LinkWindow:   cfg.Checkout.LinkRateWindow,
	}
	if stripeClient != nil {
		paymentParams.Checkout = stripeClient
	}
	paymentSvc, err := payments.NewService(paymentParams)
	requireResource(ctx, logg, "payments service", err)

	fulfillmentSvc, err := fulfillment.NewService(orderRepo, dbClient, outboxSvc, logg)
	requireResource(ctx, logg, "fulfillment service", err)

	reconciler, err := webhooks.NewReconciler(webhooks.ReconcilerParams{
		Orders:  orderRepo,
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Metrics: commerceMetrics,
		Logger:  logg,
	})
	requireResource(ctx, logg, "webhook reconciler", err)

	shopifyWebhooks, err := shopifywebhook.NewService(orderRepo, businessRepo, reconciler)
	requireResource(ctx, logg, "shopify webhook service", err)
	shopifyGuard, err := webhooks.NewDeliveryGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "shopify")
	requireResource(ctx, logg, "shopify webhook guard", err)

	deps := routes.Deps{
		Config: cfg,
		Logger: logg,
		Ready: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Metrics:         promhttp.Handler(),
		Idempotency:     redisClient,
		Ownership:       businesses.NewOwnership(businessRepo),
		Orders:          orderSvc,
		Payments:        paymentSvc,
		Fulfillment:     fulfillmentSvc,
		ShopifyWebhooks: shopifyWebhooks,
		ShopifyGuard:    shopifyGuard,
		WebhookOutcomes: reconciler,
	}
	if stripeClient != nil {
		stripeWebhooks, err := stripewebhook.NewService(orderRepo, reconciler)
		requireResource(ctx, logg, "stripe webhook service", err)
		stripeGuard, err := webhooks.NewDeliveryGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe")
		requireResource(ctx, logg, "stripe webhook guard", err)
		deps.StripeWebhooks = stripeWebhooks
		deps.StripeSigner = stripeClient
		deps.StripeGuard = stripeGuard
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
		"stripe_env":  cfg.Stripe.Environment(),
	})
	logg.Info(runCtx, "starting api server")

	if err := api.Serve(runCtx, api.NewServer(addr, routes.NewRouter(deps)), logg); err != nil {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "api server stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
