package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/migueldlcruz/tindago-backend/internal/audit"
	"github.com/migueldlcruz/tindago-backend/internal/chatflow"
	"github.com/migueldlcruz/tindago-backend/internal/checkout"
	"github.com/migueldlcruz/tindago-backend/internal/inventory"
	"github.com/migueldlcruz/tindago-backend/internal/notifications"
	"github.com/migueldlcruz/tindago-backend/internal/orderlog"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/internal/pricing"
	"github.com/migueldlcruz/tindago-backend/internal/sweeper"
	"github.com/migueldlcruz/tindago-backend/pkg/config"
	"github.com/migueldlcruz/tindago-backend/pkg/db"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/metrics"
	"github.com/migueldlcruz/tindago-backend/pkg/migrate"
	"github.com/migueldlcruz/tindago-backend/pkg/paymongo"
	"github.com/migueldlcruz/tindago-backend/pkg/redis"
	"github.com/migueldlcruz/tindago-backend/pkg/xendit"
)

const lockKeyFormat = "tindago:sweeper:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sweeper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	auditService, err := audit.NewService(dbClient.DB(), logg)
	if err != nil {
		logg.Error(ctx, "failed to create audit service", err)
		os.Exit(1)
	}

	sender, err := notifications.NewHTTPSender(cfg.Notify.RelayEndpoint, cfg.Notify.RelayAPIKey, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification sender", err)
		os.Exit(1)
	}
	notifyService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), sender, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	pricingService, err := pricing.NewService(pricing.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create pricing service", err)
		os.Exit(1)
	}
	inventoryService, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(ctx, "failed to create inventory service", err)
		os.Exit(1)
	}
	orderlogService, err := orderlog.NewService(orderlog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create order log service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		pricingService,
		inventoryService,
		orderlogService,
		auditService,
		notifyService,
		logg,
		cfg.Checkout.EmbeddedItemLimit,
	)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	xenditClient, err := xendit.NewClient(ctx, cfg.Xendit, logg)
	if err != nil {
		logg.Error(ctx, "failed to create xendit client", err)
		os.Exit(1)
	}
	paymongoClient, err := paymongo.NewClient(ctx, cfg.PayMongo, logg)
	if err != nil {
		logg.Error(ctx, "failed to create paymongo client", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		checkout.NewRepository(dbClient.DB()),
		dbClient,
		ordersService,
		xenditClient,
		paymongoClient,
		redisClient,
		auditService,
		logg,
		cfg.Checkout,
		cfg.Sweeper,
	)
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	chatService, err := chatflow.NewService(
		chatflow.NewRepository(dbClient.DB()),
		ordersService,
		checkoutService,
		redisClient,
		notifyService,
		logg,
		cfg.Chat,
	)
	if err != nil {
		logg.Error(ctx, "failed to create chat service", err)
		os.Exit(1)
	}

	sessionExpiry, err := sweeper.NewSessionExpiryJob(checkoutService)
	if err != nil {
		logg.Error(ctx, "failed to create session expiry job", err)
		os.Exit(1)
	}
	stuckIntents, err := sweeper.NewStuckIntentJob(checkoutService)
	if err != nil {
		logg.Error(ctx, "failed to create stuck intent job", err)
		os.Exit(1)
	}
	chatCleanup, err := sweeper.NewChatCleanupJob(chatService)
	if err != nil {
		logg.Error(ctx, "failed to create chat cleanup job", err)
		os.Exit(1)
	}
	notifyDispatch, err := sweeper.NewNotificationDispatchJob(notifyService, cfg.Notify.DispatchBatch)
	if err != nil {
		logg.Error(ctx, "failed to create notification dispatch job", err)
		os.Exit(1)
	}

	lock, err := sweeper.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(ctx, "failed to create sweeper lock", err)
		os.Exit(1)
	}

	service, err := sweeper.NewService(sweeper.ServiceParams{
		Logger:   logg,
		Registry: sweeper.NewRegistry(sessionExpiry, stuckIntents, chatCleanup, notifyDispatch),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sweeper.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create sweeper service", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"env": cfg.App.Env})
	logg.Info(runCtx, "starting sweeper")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "sweeper shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
