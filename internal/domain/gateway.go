package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type VerificationStatus string

const (
	VerificationStatusCompleted VerificationStatus = "completed"
	VerificationStatusPending   VerificationStatus = "pending"
	VerificationStatusFailed    VerificationStatus = "failed"
	VerificationStatusRefunded  VerificationStatus = "refunded"
)

// VerificationResult is what a gateway reports for a single verification call.
type VerificationResult struct {
	Status          VerificationStatus
	ReceiptUrl      *string
	GatewayResponse *string
	// Amount is the settled amount as seen by the gateway, if it reports one.
	Amount *decimal.Decimal
}

type Availability struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// GatewayCheckout is returned by gateways that need a customer-facing step.
type GatewayCheckout struct {
	Reference   string
	RedirectUrl *string
}

// PaymentGateway is the verification oracle for one payment method.
type PaymentGateway interface {
	Verify(ctx context.Context, transactionID string) (*VerificationResult, error)
	CheckAvailability(ctx context.Context) Availability
}

// ReferenceVerifier is implemented by gateways that can verify through the
// reference they returned at initiation. It is preferred over Verify when the
// payment carries one.
type ReferenceVerifier interface {
	VerifyReference(ctx context.Context, transactionID, reference string) (*VerificationResult, error)
}

// PaymentInitiator is implemented by gateways that must be told about a new payment.
type PaymentInitiator interface {
	Initiate(ctx context.Context, payment *Payment, booking *Booking) (*GatewayCheckout, error)
}
