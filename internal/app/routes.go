package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
)

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)
	r.MethodNotAllowed(app.methodNotAllowedResponse)

	r.Use(middleware.RequestID)
	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(app.logRequest)
	r.Use(app.recoverPanic)

	r.Get("/healthcheck", app.GetHealth)
	r.Get("/openapi.json", app.GetOpenApiDocument)
	r.Get("/payment-methods/{method}/availability", app.GetPaymentMethodAvailability)

	// gateway-facing routes are authenticated by the gateway, not by a session
	r.Post("/payments/callback", app.PaymentCallbackHandler)
	r.Post("/webhook/stripe", app.StripeWebhookHandler)

	r.Group(func(r chi.Router) {
		r.Use(app.sessionManager.LoadAndSave)
		r.Use(app.requireAuthentication)

		r.Post("/payments/initiate", app.InitiatePaymentHandler)
		r.Post("/payments/verify", app.VerifyPaymentHandler)
		r.Get("/payments/{transactionId}", app.GetPaymentHandler)
		r.Post("/payments/{transactionId}/refund", app.RefundPaymentHandler)
	})

	return r
}
