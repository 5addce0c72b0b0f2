package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/canteenhq/canteen-payments/internal/http/handler"
	"github.com/canteenhq/canteen-payments/internal/http/middleware"
)

type RouterParams struct {
	Webhooks *handler.WebhookHandler
	Payments *handler.PaymentHandler
	Health   *handler.HealthHandler

	Auth     func(http.Handler) http.Handler
	APILimit *middleware.RateLimiter
}

// NewRouter assembles the HTTP surface. The webhook route stays outside
// the authenticated group: the provider signs requests instead of
// carrying bearer tokens, and the payment service applies its own
// per-transaction limiter.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", p.Health.Healthz)

	r.Post("/webhooks/payment", p.Webhooks.HandlePaymentWebhook)

	r.Route("/api/v1/payments", func(api chi.Router) {
		if p.APILimit != nil {
			api.Use(p.APILimit.Middleware())
		}
		api.Post("/orders", p.Payments.CreateOrder)

		api.Group(func(authed chi.Router) {
			authed.Use(p.Auth)
			authed.Get("/status/{transactionID}", p.Payments.CheckStatus)
			authed.Get("/receipts/{orderID}", p.Payments.GetReceipt)
		})
	})

	return r
}
