package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/migueldlcruz/tindago-backend/api/controllers"
	authcontrollers "github.com/migueldlcruz/tindago-backend/api/controllers/auth"
	chatcontrollers "github.com/migueldlcruz/tindago-backend/api/controllers/chat"
	checkoutcontrollers "github.com/migueldlcruz/tindago-backend/api/controllers/checkout"
	ordercontrollers "github.com/migueldlcruz/tindago-backend/api/controllers/orders"
	paymentcontrollers "github.com/migueldlcruz/tindago-backend/api/controllers/payments"
	webhookcontrollers "github.com/migueldlcruz/tindago-backend/api/controllers/webhooks"
	"github.com/migueldlcruz/tindago-backend/api/middleware"
	"github.com/migueldlcruz/tindago-backend/internal/auth"
	"github.com/migueldlcruz/tindago-backend/internal/chatflow"
	checkoutsvc "github.com/migueldlcruz/tindago-backend/internal/checkout"
	"github.com/migueldlcruz/tindago-backend/internal/orders"
	"github.com/migueldlcruz/tindago-backend/internal/payments"
	"github.com/migueldlcruz/tindago-backend/pkg/auth/session"
	"github.com/migueldlcruz/tindago-backend/pkg/config"
	"github.com/migueldlcruz/tindago-backend/pkg/db"
	"github.com/migueldlcruz/tindago-backend/pkg/logger"
	pkgredis "github.com/migueldlcruz/tindago-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	sessionChecker session.AccessSessionChecker,
	authService auth.Service,
	ordersService orders.Service,
	checkoutService checkoutsvc.Service,
	paymentsService payments.Service,
	chatService chatflow.Service,
) http.Handler {
	var idemStore pkgredis.IdempotencyStore
	if redisClient != nil {
		idemStore = redisClient
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	// Provider callbacks and the chat relay authenticate themselves;
	// no bearer token is involved.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/xendit", webhookcontrollers.XenditCallback(paymentsService, logg))
		r.Post("/paymongo", webhookcontrollers.PayMongoEvent(paymentsService, logg))
	})
	r.Post("/api/v1/chat/messages", chatcontrollers.InboundMessage(chatService, cfg.Chat.RelayKey, logg))

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", authcontrollers.Login(authService, logg))
		r.Post("/refresh", authcontrollers.Refresh(authService, logg))
		r.With(middleware.Auth(cfg.JWT, sessionChecker, logg)).Post("/logout", authcontrollers.Logout(authService, logg))
	})

	// Customer-facing checkout: the token is the credential, but a logged-in
	// caller still gets recognized so customer-bound sessions resolve.
	r.Route("/api/v1/checkout/sessions/{token}", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, sessionChecker, logg))
		r.Get("/", checkoutcontrollers.GetSession(checkoutService, logg))
		r.With(middleware.Idempotency(idemStore, logg)).Post("/invoice", checkoutcontrollers.CreateInvoice(checkoutService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		r.Use(middleware.RequireStaff(logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Post("/", ordercontrollers.Create(ordersService, logg))
			r.Get("/{orderID}", ordercontrollers.Get(ordersService, logg))
			r.Post("/{orderID}/status", ordercontrollers.ChangeStatus(ordersService, logg))
			r.Post("/{orderID}/payment-status", ordercontrollers.ChangePaymentStatus(ordersService, logg))
			r.Post("/{orderID}/cancel", ordercontrollers.Cancel(ordersService, logg))
			r.Get("/{orderID}/payments", paymentcontrollers.ListByOrder(paymentsService, logg))
			r.Post("/{orderID}/payments", paymentcontrollers.RecordManual(paymentsService, logg))
		})

		r.Post("/checkout/sessions", checkoutcontrollers.CreateSession(checkoutService, logg))
	})

	return r
}
