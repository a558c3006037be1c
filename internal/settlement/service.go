// Package settlement owns the lifecycle of a payment from initiation through
// gateway verification to a terminal status.
package settlement

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/shopspring/decimal"
)

// Locker guards a verification sequence across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

type AvailabilityCache interface {
	Get(ctx context.Context, method domain.PaymentMethod) (*domain.Availability, bool, error)
	Set(ctx context.Context, method domain.PaymentMethod, availability domain.Availability, ttl time.Duration) error
}

// Notifier is told about every payment that reaches the successful status.
type Notifier interface {
	PaymentSettled(ctx context.Context, payment *domain.Payment)
}

// Gateways maps each supported payment method to its verification oracle.
type Gateways map[domain.PaymentMethod]domain.PaymentGateway

type Config struct {
	Retry           RetryPolicy
	Tolerance       decimal.Decimal
	DefaultCurrency string
	// CountryCode replaces the leading zero of national mobile money numbers.
	CountryCode     string
	LockSlack       time.Duration
	AvailabilityTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Retry:           DefaultRetryPolicy(),
		Tolerance:       decimal.NewFromInt(100),
		DefaultCurrency: "GHS",
		CountryCode:     "233",
		LockSlack:       5 * time.Second,
		AvailabilityTTL: 30 * time.Second,
	}
}

type Service struct {
	cfg      Config
	payments domain.PaymentRepository
	bookings domain.BookingRepository
	gateways Gateways
	locker   Locker
	logger   *slog.Logger

	availabilityCache AvailabilityCache
	notifier          Notifier
	sleep             Sleeper
	entropy           io.Reader
	now               func() time.Time

	flights flightGroup
	metrics *metrics
}

type Option func(*Service)

func WithSleeper(sleep Sleeper) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithAvailabilityCache(c AvailabilityCache) Option {
	return func(s *Service) {
		s.availabilityCache = c
	}
}

// WithEntropy replaces crypto/rand as the source of identifiers.
func WithEntropy(r io.Reader) Option {
	return func(s *Service) {
		s.entropy = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(
	cfg Config,
	payments domain.PaymentRepository,
	bookings domain.BookingRepository,
	gateways Gateways,
	locker Locker,
	logger *slog.Logger,
	opts ...Option) *Service {

	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.AttemptTimeout <= 0 {
		cfg.Retry.AttemptTimeout = DefaultRetryPolicy().AttemptTimeout
	}

	s := &Service{
		cfg:      cfg,
		payments: payments,
		bookings: bookings,
		gateways: gateways,
		locker:   locker,
		logger:   logger,
		sleep:    sleepWithTimer,
		entropy:  rand.Reader,
		now:      time.Now,
		metrics:  newMetrics(logger),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type InitiateInput struct {
	StudentID     int
	BookingID     int
	PaymentMethod domain.PaymentMethod
	PhoneNumber   *string
	PhoneGateway  *string
	Amount        decimal.Decimal
	Currency      *string
}

type Initiated struct {
	Payment     *domain.Payment
	CheckoutUrl *string
}

// Initiate validates the request against the booking and creates a pending payment.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*Initiated, error) {
	if !in.PaymentMethod.IsValid() {
		return nil, domain.NewValidationError("paymentMethod", "must be one of mobile-money, bank-transfer, card")
	}

	gateway, ok := s.gateways[in.PaymentMethod]
	if !ok {
		return nil, domain.NewValidationError("paymentMethod", "is not supported")
	}

	var phoneNumber *string
	if in.PaymentMethod == domain.PaymentMethodMobileMoney {
		if in.PhoneNumber == nil || strings.TrimSpace(*in.PhoneNumber) == "" {
			return nil, domain.NewValidationError("phoneNumber", "is required for mobile-money payments")
		}

		msisdn, err := domain.NormalizeMSISDN(*in.PhoneNumber, s.cfg.CountryCode)
		if err != nil {
			return nil, domain.NewValidationError("phoneNumber", "must be a valid mobile money number")
		}

		phoneNumber = &msisdn
	}

	if in.Amount.IsNegative() {
		return nil, domain.NewValidationError("amount", "must not be negative")
	}

	if !in.Amount.Equal(in.Amount.Truncate(2)) {
		return nil, domain.NewValidationError("amount", "must have at most 2 decimal places")
	}

	booking, err := s.bookings.GetById(ctx, in.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NewValidationError("bookingId", "does not reference an existing booking")
		}

		return nil, fmt.Errorf("get booking %d: %w", in.BookingID, err)
	}

	// another student's booking is reported as unknown to avoid enumeration
	if booking.StudentID != in.StudentID {
		return nil, domain.NewValidationError("bookingId", "does not reference an existing booking")
	}

	switch booking.Status {
	case domain.BookingStatusCancelled:
		return nil, domain.NewValidationError("bookingId", "references a cancelled booking")
	case domain.BookingStatusConfirmed:
		return nil, domain.ErrBookingAlreadyPaid
	}

	currency, err := s.resolveCurrency(in.Currency, booking)
	if err != nil {
		return nil, err
	}

	if !domain.WithinTolerance(booking.TotalPrice, in.Amount, s.cfg.Tolerance) {
		return nil, domain.NewValidationError("amount", "does not match the booking total")
	}

	_, err = s.payments.GetPendingByBookingId(ctx, booking.ID)
	switch {
	case err == nil:
		return nil, domain.ErrPaymentAlreadyPending
	case !errors.Is(err, domain.ErrRecordNotFound):
		return nil, fmt.Errorf("check pending payments of booking %d: %w", booking.ID, err)
	}

	payment, err := s.newPayment(in, booking, currency, phoneNumber)
	if err != nil {
		return nil, err
	}

	err = s.payments.Create(ctx, payment)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment initiated",
		"transaction_id", payment.TransactionID,
		"booking_id", payment.BookingID,
		"payment_method", payment.PaymentMethod,
		"amount", payment.Amount.String())

	initiated := &Initiated{Payment: payment}

	initiator, ok := gateway.(domain.PaymentInitiator)
	if !ok {
		return initiated, nil
	}

	checkout, err := initiator.Initiate(ctx, payment, booking)
	if err != nil {
		s.failInitiation(ctx, payment, err)
		return nil, fmt.Errorf("%w: initiate %s payment: %w", domain.ErrGatewayUnavailable, payment.PaymentMethod, err)
	}

	if checkout.Reference != "" {
		err = s.payments.SetGatewayReference(ctx, payment.TransactionID, checkout.Reference)
		if err != nil {
			return nil, err
		}

		payment.GatewayReference = &checkout.Reference
	}

	initiated.CheckoutUrl = checkout.RedirectUrl

	return initiated, nil
}

func (s *Service) resolveCurrency(requested *string, booking *domain.Booking) (string, error) {
	currency := s.cfg.DefaultCurrency
	if booking.Currency != "" {
		currency = booking.Currency
	}

	if requested == nil || *requested == "" {
		return currency, nil
	}

	if !strings.EqualFold(*requested, currency) {
		return "", domain.NewValidationError("currency", "does not match the booking currency")
	}

	return currency, nil
}

func (s *Service) newPayment(
	in InitiateInput,
	booking *domain.Booking,
	currency string,
	phoneNumber *string) (*domain.Payment, error) {

	id, err := uuid.NewRandomFromReader(s.entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEntropySourceUnavailable, err)
	}

	transactionID, err := domain.GenerateCorrelationID(s.entropy)
	if err != nil {
		return nil, err
	}

	verificationToken, err := domain.GenerateCorrelationID(s.entropy)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:                id,
		BookingID:         booking.ID,
		StudentID:         booking.StudentID,
		Amount:            in.Amount,
		Currency:          strings.ToUpper(currency),
		PaymentMethod:     in.PaymentMethod,
		TransactionID:     transactionID,
		VerificationToken: verificationToken,
		Status:            domain.PaymentStatusPending,
		PhoneNumber:       phoneNumber,
		PaymentDate:       s.now(),
	}

	if phoneNumber != nil {
		payment.PhoneGateway = in.PhoneGateway
	}

	return payment, nil
}

func (s *Service) failInitiation(ctx context.Context, payment *domain.Payment, cause error) {
	reason := fmt.Sprintf("initiation failed: %s", cause)

	_, err := s.payments.CompareAndSetStatus(
		context.WithoutCancel(ctx),
		payment.TransactionID,
		domain.PaymentStatusPending,
		domain.PaymentStatusFailed,
		domain.SettlementFields{GatewayResponse: &reason},
	)
	if err != nil {
		s.logger.Error("failed to mark payment as failed after gateway initiation error",
			"transaction_id", payment.TransactionID,
			"error", err)
		return
	}

	s.logger.Warn("gateway initiation failed", "transaction_id", payment.TransactionID, "error", cause)
}

// Get returns the payment if it belongs to studentID.
func (s *Service) Get(ctx context.Context, transactionID string, studentID int) (*domain.Payment, error) {
	payment, err := s.payments.GetByTransactionId(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if payment.StudentID != studentID {
		return nil, domain.ErrRecordNotFound
	}

	return payment, nil
}

// Refund moves a successful payment to refunded. It is the only way to reach refunded.
func (s *Service) Refund(ctx context.Context, transactionID string, studentID int) (*domain.Payment, error) {
	payment, err := s.Get(ctx, transactionID, studentID)
	if err != nil {
		return nil, err
	}

	if !payment.Status.CanTransitionTo(domain.PaymentStatusRefunded) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidStatusTransition, payment.Status, domain.PaymentStatusRefunded)
	}

	refunded, err := s.payments.CompareAndSetStatus(
		ctx,
		transactionID,
		domain.PaymentStatusSuccessful,
		domain.PaymentStatusRefunded,
		domain.SettlementFields{},
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment refunded", "transaction_id", transactionID)

	return refunded, nil
}

// CheckAvailability probes the gateway of method. Unknown methods are unavailable.
func (s *Service) CheckAvailability(ctx context.Context, method domain.PaymentMethod) domain.Availability {
	gateway, ok := s.gateways[method]
	if !ok {
		return domain.Availability{
			Available: false,
			Message:   fmt.Sprintf("payment method %q is not supported", method),
		}
	}

	if s.availabilityCache != nil {
		cached, found, err := s.availabilityCache.Get(ctx, method)
		if err != nil {
			s.logger.Warn("failed to read cached availability", "payment_method", method, "error", err)
		} else if found {
			return *cached
		}
	}

	availability := gateway.CheckAvailability(ctx)

	if s.availabilityCache != nil {
		err := s.availabilityCache.Set(ctx, method, availability, s.cfg.AvailabilityTTL)
		if err != nil {
			s.logger.Warn("failed to cache availability", "payment_method", method, "error", err)
		}
	}

	return availability
}
