package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/metinatakli/hostel-booking/internal/payment"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const maxWebhookBytes = 65536

// StripeWebhookHandler acknowledges Stripe events and verifies the payment they
// refer to in the background. Stripe only needs a quick 2xx.
func (app *Application) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("unable to read request body"))
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		r.Header.Get("Stripe-Signature"),
		app.config.Stripe.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		logger.Warn("stripe webhook signature verification failed", "error", err)
		app.badRequestResponse(w, r, fmt.Errorf("invalid webhook signature"))
		return
	}

	transactionId, err := eventTransactionId(event)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if transactionId == "" {
		logger.Debug("ignoring stripe event", "event_id", event.ID, "type", event.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	go func(ctx context.Context) {
		gLogger := app.contextGetLogger(r.WithContext(ctx)).With("transaction_id", transactionId, "event_id", event.ID)

		defer func() {
			if err := recover(); err != nil {
				gLogger.Error("panic occurred during webhook verification", "panic", err)
			}
		}()

		outcome, err := app.payments.Verify(ctx, transactionId)
		switch {
		case errors.Is(err, domain.ErrVerificationInProgress):
			gLogger.Info("verification already running for webhook event")
		case err != nil:
			gLogger.Error("webhook verification failed", "error", err)
		default:
			gLogger.Info("webhook verification finished", "status", outcome.Status)
		}
	}(context.WithoutCancel(r.Context()))

	w.WriteHeader(http.StatusOK)
}

// eventTransactionId returns the transaction id carried in the metadata of
// payment intent and checkout session events, or "" for other events.
func eventTransactionId(event stripe.Event) (string, error) {
	var metadata map[string]string

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:

		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", fmt.Errorf("malformed payment intent in event %s", event.ID)
		}
		metadata = intent.Metadata

	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionExpired:

		var checkoutSession stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &checkoutSession); err != nil {
			return "", fmt.Errorf("malformed checkout session in event %s", event.ID)
		}
		metadata = checkoutSession.Metadata

	default:
		return "", nil
	}

	return metadata[payment.TransactionIdMetadataKey], nil
}
