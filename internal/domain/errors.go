package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound                 = errors.New("record not found")
	ErrEditConflict                   = errors.New("edit conflict")
	ErrPaymentAlreadyPending          = errors.New("a pending payment already exists for this booking")
	ErrBookingAlreadyPaid             = errors.New("booking has already been paid")
	ErrVerificationInProgress         = errors.New("payment verification is already in progress")
	ErrInvalidStatusTransition        = errors.New("payment status transition is not allowed")
	ErrGatewayUnavailable             = errors.New("payment gateway unavailable")
	ErrVerificationFailedAfterRetries = errors.New("payment verification failed after retries")
	ErrEntropySourceUnavailable       = errors.New("secure random source unavailable")
)

// ValidationError reports a single invalid input field. It is never retried.
type ValidationError struct {
	Field string
	Issue string
}

func NewValidationError(field, issue string) *ValidationError {
	return &ValidationError{Field: field, Issue: issue}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Issue)
}

// IsConflict reports whether err belongs to the conflict category.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPaymentAlreadyPending) ||
		errors.Is(err, ErrBookingAlreadyPaid) ||
		errors.Is(err, ErrVerificationInProgress) ||
		errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrEditConflict)
}
