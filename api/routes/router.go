package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luxeledger/inventory-backend/api/controllers"
	"github.com/luxeledger/inventory-backend/api/middleware"
	"github.com/luxeledger/inventory-backend/internal/auth"
	"github.com/luxeledger/inventory-backend/internal/ledger"
	"github.com/luxeledger/inventory-backend/pkg/auth/session"
	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/enums"
	"github.com/luxeledger/inventory-backend/pkg/logger"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

// NewRouter mounts health, metrics, the two-step auth flow and the inventory API.
// limiter may be nil, in which case auth endpoints are not throttled.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	limiter middleware.RateLimiter,
	sessionManager sessionManager,
	issuer auth.Issuer,
	ledgerService ledger.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	otpPolicy := middleware.NewAuthRateLimitPolicy(
		"otp",
		cfg.AuthRateLimit.OTPWindow,
		cfg.AuthRateLimit.OTPIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, limiter, logg)).Post("/login", controllers.AuthLogin(issuer, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, limiter, logg)).Post("/customers", controllers.AuthRegisterCustomer(issuer, logg))
		r.Route("/otp", func(r chi.Router) {
			r.Use(middleware.AuthRateLimit(otpPolicy, limiter, logg))
			r.Post("/request", controllers.AuthRequestCode(issuer, logg))
			r.Post("/verify", controllers.AuthVerifyCode(issuer, logg))
			r.Post("/cancel", controllers.AuthCancel(issuer, logg))
		})
		r.Post("/logout", controllers.AuthLogout(sessionManager, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(sessionManager, cfg.JWT, logg))
	})

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))

		r.Get("/", controllers.InventoryList(ledgerService, logg))
		r.Get("/verify", controllers.InventoryVerify(ledgerService, logg))
		r.With(middleware.RequireKind(enums.ActorKindEmployee, logg)).Post("/", controllers.InventoryAppend(ledgerService, logg))

		r.Route("/{uid}", func(r chi.Router) {
			r.Get("/history", controllers.InventoryHistory(ledgerService, logg))
			r.Post("/sell", controllers.InventorySell(ledgerService, logg))
			r.Post("/reserve", controllers.InventoryReserve(ledgerService, logg))
		})
	})

	return r
}
