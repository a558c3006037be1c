// Package api holds the HTTP contract of the payments service.
package api

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
)

// Defines values for PaymentMethod.
const (
	PaymentMethodBankTransfer PaymentMethod = "bank-transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodMobileMoney  PaymentMethod = "mobile-money"
)

// Defines values for PaymentStatus.
const (
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusSuccessful PaymentStatus = "successful"
)

// Defines values for VerificationStatus.
const (
	VerificationStatusCompleted VerificationStatus = "completed"
	VerificationStatusFailed    VerificationStatus = "failed"
	VerificationStatusPending   VerificationStatus = "pending"
	VerificationStatusRefunded  VerificationStatus = "refunded"
)

type PaymentMethod string

type PaymentStatus string

type VerificationStatus string

type ErrorResponse struct {
	Message   string    `json:"message"`
	RequestId string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	RequestId        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationErrors []ValidationError `json:"validationErrors,omitempty"`
}

type InitiatePaymentRequest struct {
	BookingId     int              `json:"bookingId" validate:"required,gt=0"`
	PaymentMethod PaymentMethod    `json:"paymentMethod" validate:"required,payment_method"`
	PhoneNumber   *string          `json:"phoneNumber,omitempty" validate:"required_if=PaymentMethod mobile-money,omitempty,max=20"`
	PhoneGateway  *string          `json:"phoneGateway,omitempty" validate:"omitempty,max=50"`
	Amount        *decimal.Decimal `json:"amount" validate:"required"`
	Currency      *string          `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

type PaymentResponse struct {
	PaymentId     openapi_types.UUID `json:"paymentId"`
	TransactionId string             `json:"transactionId"`
	BookingId     int                `json:"bookingId"`
	Status        PaymentStatus      `json:"status"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency"`
	PaymentMethod PaymentMethod      `json:"paymentMethod"`
	PhoneNumber   *string            `json:"phoneNumber,omitempty"`
	PhoneGateway  *string            `json:"phoneGateway,omitempty"`
	ReceiptUrl    *string            `json:"receiptUrl,omitempty"`
	PaymentDate   time.Time          `json:"paymentDate"`
	SettledAt     *time.Time         `json:"settledAt,omitempty"`
	CheckoutUrl   *string            `json:"checkoutUrl,omitempty"`
}

type VerifyPaymentRequest struct {
	TransactionId string `json:"transactionId" validate:"required,max=64"`
}

type CallbackRequest struct {
	VerificationToken string `json:"verificationToken" validate:"required,max=64"`
}

type VerifyPaymentResponse struct {
	TransactionId string             `json:"transactionId"`
	Verified      bool               `json:"verified"`
	Status        VerificationStatus `json:"status"`
	Message       string             `json:"message"`
}

type AvailabilityResponse struct {
	PaymentMethod string `json:"paymentMethod"`
	Available     bool   `json:"available"`
	Message       string `json:"message"`
}

type SystemInfo struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

type HealthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo SystemInfo `json:"systemInfo"`
}
