package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/balance"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// TransactionIdMetadataKey links a Stripe payment intent back to its payment.
const TransactionIdMetadataKey = "transaction_id"

// StripeGateway settles card payments through Stripe Checkout.
type StripeGateway struct {
	failureUrl string
	successUrl string

	newSession   func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	searchIntent func(params *stripe.PaymentIntentSearchParams) (*stripe.PaymentIntent, error)
	getSession   func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getBalance   func(params *stripe.BalanceParams) (*stripe.Balance, error)
}

func NewStripeGateway(failureUrl, successUrl string) *StripeGateway {
	return &StripeGateway{
		failureUrl:   failureUrl,
		successUrl:   successUrl,
		newSession:   session.New,
		searchIntent: firstIntent,
		getSession:   session.Get,
		getBalance:   balance.Get,
	}
}

func firstIntent(params *stripe.PaymentIntentSearchParams) (*stripe.PaymentIntent, error) {
	iter := paymentintent.Search(params)

	if iter.Next() {
		return iter.PaymentIntent(), nil
	}

	return nil, iter.Err()
}

func (s *StripeGateway) Initiate(
	ctx context.Context,
	payment *domain.Payment,
	booking *domain.Booking) (*domain.GatewayCheckout, error) {

	nights := int(booking.CheckOut.Sub(booking.CheckIn).Hours() / 24)

	lineItem := &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(payment.Currency)),
			UnitAmount: stripe.Int64(minorUnits(payment.Amount)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(fmt.Sprintf("%s - %s", booking.HostelName, booking.RoomLabel)),
				Description: stripe.String(fmt.Sprintf(
					"Check-in: %s • Check-out: %s • Nights: %d",
					booking.CheckIn.Format("Jan 2, 2006"),
					booking.CheckOut.Format("Jan 2, 2006"),
					nights,
				)),
			},
		},
		Quantity: stripe.Int64(1),
	}

	metadata := map[string]string{
		TransactionIdMetadataKey: payment.TransactionID,
		"booking_id":             fmt.Sprint(booking.ID),
	}

	params := &stripe.CheckoutSessionParams{
		LineItems:  []*stripe.CheckoutSessionLineItemParams{lineItem},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successUrl),
		CancelURL:  stripe.String(s.failureUrl),
		Metadata:   metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		ClientReferenceID: stripe.String(payment.TransactionID),
	}
	params.Context = ctx

	checkoutSession, err := s.newSession(params)
	if err != nil {
		return nil, err
	}

	return &domain.GatewayCheckout{
		Reference:   checkoutSession.ID,
		RedirectUrl: stripe.String(checkoutSession.URL),
	}, nil
}

func (s *StripeGateway) Verify(ctx context.Context, transactionID string) (*domain.VerificationResult, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", TransactionIdMetadataKey, transactionID)
	params.Context = ctx
	params.AddExpand("data.latest_charge")

	intent, err := s.searchIntent(params)
	if err != nil {
		return nil, fmt.Errorf("%w: search payment intent: %w", domain.ErrGatewayUnavailable, err)
	}

	// the customer has not completed checkout yet
	if intent == nil {
		return &domain.VerificationResult{Status: domain.VerificationStatusPending}, nil
	}

	return intentResult(intent), nil
}

// VerifyReference reads the checkout session created at initiation. An expired
// session will never be paid, so it settles the payment as failed.
func (s *StripeGateway) VerifyReference(
	ctx context.Context,
	transactionID string,
	sessionID string) (*domain.VerificationResult, error) {

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent.latest_charge")

	checkoutSession, err := s.getSession(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: get checkout session: %w", domain.ErrGatewayUnavailable, err)
	}

	if checkoutSession.Status == stripe.CheckoutSessionStatusExpired {
		response := fmt.Sprintf("checkout session %s: expired", checkoutSession.ID)
		return &domain.VerificationResult{
			Status:          domain.VerificationStatusFailed,
			GatewayResponse: &response,
		}, nil
	}

	if checkoutSession.PaymentIntent != nil && checkoutSession.PaymentIntent.Status != "" {
		return intentResult(checkoutSession.PaymentIntent), nil
	}

	return s.Verify(ctx, transactionID)
}

func intentResult(intent *stripe.PaymentIntent) *domain.VerificationResult {
	response := fmt.Sprintf("payment intent %s: %s", intent.ID, intent.Status)

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		amount := decimal.New(intent.AmountReceived, -2)

		result := &domain.VerificationResult{
			Status:          domain.VerificationStatusCompleted,
			GatewayResponse: &response,
			Amount:          &amount,
		}

		if intent.LatestCharge != nil && intent.LatestCharge.ReceiptURL != "" {
			result.ReceiptUrl = stripe.String(intent.LatestCharge.ReceiptURL)
		}

		return result

	case stripe.PaymentIntentStatusCanceled:
		return &domain.VerificationResult{
			Status:          domain.VerificationStatusFailed,
			GatewayResponse: &response,
		}

	default:
		return &domain.VerificationResult{Status: domain.VerificationStatusPending}
	}
}

func (s *StripeGateway) CheckAvailability(ctx context.Context) domain.Availability {
	params := &stripe.BalanceParams{}
	params.Context = ctx

	_, err := s.getBalance(params)
	if err != nil {
		return domain.Availability{Available: false, Message: "Card payments are temporarily unavailable"}
	}

	return domain.Availability{Available: true, Message: "Card payments are available"}
}

// minorUnits converts an amount to cents, the unit Stripe expects for two-decimal currencies.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
