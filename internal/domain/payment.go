package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSuccessful PaymentStatus = "successful"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// IsTerminal reports whether no automatic transition leaves the status.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccessful || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// CanTransitionTo reports whether the state machine allows moving from s to target.
//
// Valid transitions are:
//   - pending → successful, failed
//   - successful → refunded
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return target == PaymentStatusSuccessful || target == PaymentStatusFailed
	case PaymentStatusSuccessful:
		return target == PaymentStatusRefunded
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "mobile-money"
	PaymentMethodBankTransfer PaymentMethod = "bank-transfer"
	PaymentMethodCard         PaymentMethod = "card"
)

var PaymentMethods = []PaymentMethod{
	PaymentMethodMobileMoney,
	PaymentMethodBankTransfer,
	PaymentMethodCard,
}

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodMobileMoney, PaymentMethodBankTransfer, PaymentMethodCard:
		return true
	default:
		return false
	}
}

type Payment struct {
	ID                uuid.UUID
	BookingID         int
	StudentID         int
	Amount            decimal.Decimal
	Currency          string
	PaymentMethod     PaymentMethod
	TransactionID     string
	VerificationToken string
	Status            PaymentStatus
	PhoneNumber       *string
	PhoneGateway      *string
	ReceiptUrl        *string
	GatewayResponse   *string
	GatewayReference  *string
	PaymentDate       time.Time
	SettledAt         *time.Time
	UpdatedAt         time.Time
}

// SettlementFields are the optional columns written together with a status change.
// Nil fields leave the stored value untouched.
type SettlementFields struct {
	ReceiptUrl      *string
	GatewayResponse *string
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByTransactionId(ctx context.Context, transactionID string) (*Payment, error)
	GetByVerificationToken(ctx context.Context, token string) (*Payment, error)
	GetPendingByBookingId(ctx context.Context, bookingID int) (*Payment, error)
	// CompareAndSetStatus moves the payment to next only if its stored status is still
	// expected. It returns ErrEditConflict when the stored status differs.
	CompareAndSetStatus(
		ctx context.Context,
		transactionID string,
		expected, next PaymentStatus,
		fields SettlementFields) (*Payment, error)
	SetGatewayReference(ctx context.Context, transactionID, reference string) error
	// ClaimPendingForReconciliation returns up to limit pending payments created
	// before the given time, least recently reconciled first, and stamps them with
	// claimedAt so the next sweep moves on to others.
	ClaimPendingForReconciliation(ctx context.Context, before, claimedAt time.Time, limit int) ([]*Payment, error)
}
