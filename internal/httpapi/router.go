package httpapi

import (
	"net/http"

	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/metrics"
	"warimas-checkout/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Handler       *Handler
	StripeWebhook http.HandlerFunc
	Metrics       *metrics.CheckoutMetrics
	Limiter       *middleware.RateLimiter
	SecretKey     string
	AllowedHosts  []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.CORS(cfg.AllowedHosts))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/health", Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(cfg.Limiter.Middleware)
		r.Post("/webhooks/stripe", cfg.StripeWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.SecretKey))
		r.Use(cfg.Limiter.Middleware)

		r.Post("/checkouts/{token}/payments", cfg.Handler.CreatePayment)
		r.Post("/checkouts/{token}/complete", cfg.Handler.CompleteCheckout)
	})

	return r
}
