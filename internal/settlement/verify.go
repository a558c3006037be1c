package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	MessageCompleted = "Payment verified successfully"
	MessagePending   = "Payment verification is still pending"
	MessageFailed    = "Payment was rejected by the payment gateway"
	MessageRefunded  = "Payment has been refunded"
)

// Outcome is the result of a verification request.
type Outcome struct {
	Verified bool
	Status   domain.VerificationStatus
	Message  string
	Payment  *domain.Payment
}

func outcomeFromPayment(p *domain.Payment) Outcome {
	switch p.Status {
	case domain.PaymentStatusSuccessful:
		return Outcome{Verified: true, Status: domain.VerificationStatusCompleted, Message: MessageCompleted, Payment: p}
	case domain.PaymentStatusFailed:
		return Outcome{Verified: false, Status: domain.VerificationStatusFailed, Message: MessageFailed, Payment: p}
	case domain.PaymentStatusRefunded:
		return Outcome{Verified: true, Status: domain.VerificationStatusRefunded, Message: MessageRefunded, Payment: p}
	default:
		return Outcome{Verified: false, Status: domain.VerificationStatusPending, Message: MessagePending, Payment: p}
	}
}

func verificationLockKey(transactionID string) string {
	return fmt.Sprintf("payment_verification_lock:%s", transactionID)
}

// Verify polls the gateway until the payment settles or the retry budget runs out.
// Terminal payments are returned as stored. Concurrent calls for the same
// transaction in this process join one sequence and share its outcome. A
// cancelled caller stops waiting without affecting the others, and the sequence
// stops retrying once every caller has gone.
func (s *Service) Verify(ctx context.Context, transactionID string) (*Outcome, error) {
	payment, err := s.payments.GetByTransactionId(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if payment.Status.IsTerminal() {
		outcome := outcomeFromPayment(payment)
		return &outcome, nil
	}

	val, err := s.flights.do(ctx, transactionID, func(ctx context.Context) (any, error) {
		return s.runVerification(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	outcome := val.(Outcome)
	return &outcome, nil
}

// VerifyByToken resolves a gateway callback token and verifies its payment.
func (s *Service) VerifyByToken(ctx context.Context, verificationToken string) (*Outcome, error) {
	payment, err := s.payments.GetByVerificationToken(ctx, verificationToken)
	if err != nil {
		return nil, err
	}

	return s.Verify(ctx, payment.TransactionID)
}

func (s *Service) runVerification(ctx context.Context, payment *domain.Payment) (Outcome, error) {
	transactionID := payment.TransactionID
	method := payment.PaymentMethod

	ctx, span := s.metrics.tracer.Start(ctx, "settlement.Verify", trace.WithAttributes(
		attribute.String("payment.transaction_id", transactionID),
		attribute.String("payment.method", string(method)),
	))
	defer span.End()

	gateway, ok := s.gateways[method]
	if !ok {
		return Outcome{}, fmt.Errorf("no gateway configured for payment method %s", method)
	}

	key := verificationLockKey(transactionID)
	lockToken, acquired, err := s.locker.TryLock(ctx, key, s.cfg.Retry.budget()+s.cfg.LockSlack)
	if err != nil {
		return Outcome{}, fmt.Errorf("acquire verification lock: %w", err)
	}
	if !acquired {
		s.metrics.recordOutcome(ctx, method, "in_progress")
		return Outcome{}, domain.ErrVerificationInProgress
	}
	defer func() {
		err := s.locker.Unlock(context.WithoutCancel(ctx), key, lockToken)
		if err != nil {
			s.logger.Warn("failed to release verification lock", "transaction_id", transactionID, "error", err)
		}
	}()

	// the payment may have settled between the first read and taking the lock
	current, err := s.payments.GetByTransactionId(ctx, transactionID)
	if err != nil {
		return Outcome{}, err
	}

	if current.Status.IsTerminal() {
		return outcomeFromPayment(current), nil
	}

	result, err := s.poll(ctx, gateway, current)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		s.metrics.recordOutcome(ctx, method, "error")

		return Outcome{}, err
	}

	switch result.Status {
	case domain.VerificationStatusCompleted:
		if result.Amount != nil && !domain.WithinTolerance(current.Amount, *result.Amount, s.cfg.Tolerance) {
			reason := fmt.Sprintf("amount mismatch: expected %s, gateway reported %s",
				current.Amount.String(), result.Amount.String())

			return s.settle(ctx, current, domain.PaymentStatusFailed, domain.SettlementFields{
				ReceiptUrl:      result.ReceiptUrl,
				GatewayResponse: &reason,
			})
		}

		return s.settle(ctx, current, domain.PaymentStatusSuccessful, domain.SettlementFields{
			ReceiptUrl:      result.ReceiptUrl,
			GatewayResponse: result.GatewayResponse,
		})

	case domain.VerificationStatusFailed:
		return s.settle(ctx, current, domain.PaymentStatusFailed, domain.SettlementFields{
			ReceiptUrl:      result.ReceiptUrl,
			GatewayResponse: result.GatewayResponse,
		})

	default:
		s.logger.Info("payment verification timed out", "transaction_id", transactionID, "attempts", s.cfg.Retry.MaxAttempts)
		s.metrics.recordOutcome(ctx, method, "timeout")

		return outcomeFromPayment(current), nil
	}
}

func (s *Service) poll(
	ctx context.Context,
	gateway domain.PaymentGateway,
	payment *domain.Payment) (*domain.VerificationResult, error) {

	policy := s.cfg.Retry

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := s.attempt(ctx, gateway, payment)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if err != nil {
			s.metrics.recordAttempt(ctx, payment.PaymentMethod, "error")
			s.logger.Debug("verification attempt failed",
				"transaction_id", payment.TransactionID,
				"attempt", attempt,
				"error", err)

			if attempt == policy.MaxAttempts {
				return nil, fmt.Errorf("%w: %d attempts: %w", domain.ErrVerificationFailedAfterRetries, attempt, err)
			}
		} else {
			s.metrics.recordAttempt(ctx, payment.PaymentMethod, string(result.Status))
			s.logger.Debug("verification attempt completed",
				"transaction_id", payment.TransactionID,
				"attempt", attempt,
				"status", result.Status)

			if result.Status == domain.VerificationStatusCompleted || result.Status == domain.VerificationStatusFailed {
				return result, nil
			}
		}

		if attempt < policy.MaxAttempts {
			err = s.sleep(ctx, policy.Delay)
			if err != nil {
				return nil, err
			}
		}
	}

	return &domain.VerificationResult{Status: domain.VerificationStatusPending}, nil
}

func (s *Service) attempt(
	ctx context.Context,
	gateway domain.PaymentGateway,
	payment *domain.Payment) (*domain.VerificationResult, error) {

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Retry.AttemptTimeout)
	defer cancel()

	var result *domain.VerificationResult
	var err error

	if rv, ok := gateway.(domain.ReferenceVerifier); ok && payment.GatewayReference != nil {
		result, err = rv.VerifyReference(ctx, payment.TransactionID, *payment.GatewayReference)
	} else {
		result, err = gateway.Verify(ctx, payment.TransactionID)
	}
	if err != nil {
		return nil, err
	}

	if result == nil {
		return &domain.VerificationResult{Status: domain.VerificationStatusPending}, nil
	}

	return result, nil
}

// settle writes the terminal status once. The write is not tied to the caller's
// cancellation so an answer already received from the gateway is kept.
func (s *Service) settle(
	ctx context.Context,
	payment *domain.Payment,
	next domain.PaymentStatus,
	fields domain.SettlementFields) (Outcome, error) {

	ctx = context.WithoutCancel(ctx)

	updated, err := s.payments.CompareAndSetStatus(ctx, payment.TransactionID, domain.PaymentStatusPending, next, fields)
	if err != nil {
		if !errors.Is(err, domain.ErrEditConflict) {
			return Outcome{}, fmt.Errorf("persist %s status: %w", next, err)
		}

		stored, err := s.payments.GetByTransactionId(ctx, payment.TransactionID)
		if err != nil {
			return Outcome{}, err
		}

		return outcomeFromPayment(stored), nil
	}

	s.logger.Info("payment settled", "transaction_id", updated.TransactionID, "status", updated.Status)
	s.metrics.recordOutcome(ctx, payment.PaymentMethod, string(next))

	if next == domain.PaymentStatusSuccessful && s.notifier != nil {
		s.notifier.PaymentSettled(ctx, updated)
	}

	return outcomeFromPayment(updated), nil
}
