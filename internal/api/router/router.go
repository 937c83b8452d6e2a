package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pratik-mahalle/bibleplan/internal/api/handlers"
	"github.com/pratik-mahalle/bibleplan/internal/api/middleware"
	"github.com/pratik-mahalle/bibleplan/internal/auth"
	"github.com/pratik-mahalle/bibleplan/internal/config"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/metrics"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Handlers struct {
	Health      *handlers.HealthHandler
	Entitlement *handlers.EntitlementHandler
	Billing     *handlers.BillingHandler
	Chat        *handlers.ChatHandler
}

// Limiters are the token buckets applied to public and authenticated traffic
type Limiters struct {
	IP   *middleware.RateLimiter
	User *middleware.RateLimiter
}

func New(cfg *config.Config, log *logger.Logger, verifier auth.Verifier, limiters Limiters, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// metrics wraps the writer first so the request logger's writer is the
	// one handlers and auth see when they add log fields
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID())
	r.Use(metrics.Middleware)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.DefaultCORS(cfg.Server.FrontendURL))
	r.Use(middleware.RateLimit(limiters.IP))

	// Operational routes
	r.Group(func(r chi.Router) {
		r.Get("/swagger/*", httpSwagger.WrapHandler)
		r.Get("/health", h.Health.Healthz)
		r.Get("/healthz", h.Health.Healthz)
		r.Get("/readyz", h.Health.Readyz)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders(cfg.IsProduction()))

		// Signed by the payment processor, not by the user
		r.Post("/billing/webhook", h.Billing.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(verifier))
			r.Use(middleware.UserRateLimit(limiters.User))

			r.Route("/entitlement", func(r chi.Router) {
				r.Get("/", h.Entitlement.Get)
				r.Post("/consume", h.Entitlement.Consume)
				r.Post("/redeem", h.Entitlement.Redeem)
				r.Get("/events", h.Entitlement.Events)
			})

			r.Post("/billing/checkout", h.Billing.Checkout)
			r.Post("/chat", h.Chat.Reply)
		})
	})

	return r
}
