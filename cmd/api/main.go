package main

import (
	"context"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/migueldlcruz/tindago-backend/api/routes"
	"github.com/migueldlcruz/tindago-backend/internal/audit"
	"github.com/migueldlcruz/tindago-backend/internal/auth"
	"github.com/migueldlcruz/tindago-backend/internal/chatflow"
	"github.com/migueldlcruz/tindago-backend/internal/checkout"
	"github.com/migueldlcruz/tindago-backend/internal/inventory"
	"github.com/migueldlcruz/tindago-backend/internal/notifications"
	"github.com/migueldlcruz/tindago-backend/internal/orderlog"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/internal/payments"
	"github.com/migueldlcruz/tindago-backend/internal/pricing"
	"github.com/migueldlcruz/tindago-backend/internal/users"
	"github.com/migueldlcruz/tindago-backend/pkg/auth/session"
	"github.com/migueldlcruz/tindago-backend/pkg/config"
	"github.com/migueldlcruz/tindago-backend/pkg/db"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	"github.com/migueldlcruz/tindago-backend/pkg/migrate"
	"github.com/migueldlcruz/tindago-backend/pkg/paymongo"
	"github.com/migueldlcruz/tindago-backend/pkg/redis"
	"github.com/migueldlcruz/tindago-backend/pkg/xendit"
)

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	systemActorID, err := uuid.Parse(cfg.System.ActorID)
	if err != nil {
		logg.Error(ctx, "invalid system actor id", err)
		os.Exit(1)
	}

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

	paymentsService, err := payments.NewService(
		payments.NewRepository(dbClient.DB()),
		dbClient,
		ordersService,
		checkoutService,
		xenditClient,
		paymongoClient,
		auditService,
		logg,
		systemActorID,
	)
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			ordersService,
			checkoutService,
			paymentsService,
			chatService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(startCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
