package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/echo-commerce-backend/internal/analytics"
	"github.com/angelmondragon/echo-commerce-backend/internal/businesses"
	"github.com/angelmondragon/echo-commerce-backend/internal/catalog"
	"github.com/angelmondragon/echo-commerce-backend/internal/inventory"
	"github.com/angelmondragon/echo-commerce-backend/internal/marketplace"
	"github.com/angelmondragon/echo-commerce-backend/internal/messaging"
	"github.com/angelmondragon/echo-commerce-backend/internal/orders"
	"github.com/angelmondragon/echo-commerce-backend/internal/tasks"
	"github.com/angelmondragon/echo-commerce-backend/pkg/bigquery"
	"github.com/angelmondragon/echo-commerce-backend/pkg/config"
	"github.com/angelmondragon/echo-commerce-backend/pkg/db"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox"
	"github.com/angelmondragon/echo-commerce-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/echo-commerce-backend/pkg/pubsub"
	"github.com/angelmondragon/echo-commerce-backend/pkg/redis"
	"github.com/angelmondragon/echo-commerce-backend/pkg/shopify"
	"github.com/angelmondragon/echo-commerce-backend/pkg/stripe"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	conn := dbClient.DB()
	orderRepo := orders.NewRepository(conn)
	businessRepo := businesses.NewRepository(conn)

	adjuster, err := inventory.NewAdjuster(inventory.AdjusterParams{
		Orders:   orderRepo,
		Variants: catalog.NewRepository(conn),
		Ledger:   inventory.NewRepository(conn),
		Tx:       dbClient,
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:   logg,
	})
	requireResource(ctx, logg, "inventory adjuster", err)

	shops := shopify.NewFactory(cfg.Shopify, logg)
	syncer, err := marketplace.NewSyncer(orderRepo, businessRepo, func(shopDomain, token string) (marketplace.OrderCreator, error) {
		return shops.ForShop(shopDomain, token)
	}, dbClient, logg)
	requireResource(ctx, logg, "marketplace syncer", err)

	params := tasks.ConsumerParams{
		Subscription: pubsubClient.TasksSubscription(),
		Idempotency:  manager,
		Inventory:    adjuster,
		Orders:       orderRepo,
		Marketplace:  syncer,
		Logger:       logg,
	}
	if topic := messaging.NewTopicPublisher(pubsubClient.MessagesPublisher()); topic != nil {
		sender, err := messaging.NewSender(topic)
		requireResource(ctx, logg, "customer messaging", err)
		params.Messenger = sender
	} else {
		logg.Warn(ctx, "messages topic not configured; payment confirmations disabled")
	}
	if cfg.Stripe.Enabled() {
		stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		requireResource(ctx, logg, "stripe client", err)
		params.Checkout = stripeClient
	}
	taskConsumer, err := tasks.NewConsumer(params)
	requireResource(ctx, logg, "order tasks consumer", err)

	writer, err := analytics.NewWriter(bqClient, bqClient.OrderEventsTable(), analytics.RetryPolicy{})
	requireResource(ctx, logg, "analytics writer", err)
	analyticsConsumer, err := analytics.NewConsumer(pubsubClient.AnalyticsSubscription(), writer, manager, logg)
	requireResource(ctx, logg, "analytics consumer", err)

	svc, err := NewService(ServiceParams{
		Logger: logg,
		Dependencies: []dependency{
			{name: "database", ping: dbClient},
			{name: "redis", ping: redisClient},
			{name: "pubsub", ping: pubsubClient},
			{name: "bigquery", ping: bqClient},
		},
		Consumers: []consumer{
			{name: "order-tasks", run: taskConsumer},
			{name: "analytics", run: analyticsConsumer},
		},
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "worker ready")

	if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
