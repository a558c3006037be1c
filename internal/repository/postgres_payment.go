package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/hostel-booking/internal/domain"
)

const onePendingPerBookingIndex = "payments_one_pending_per_booking_idx"

const paymentColumns = `
	id, booking_id, student_id, amount, currency, payment_method,
	transaction_id, verification_token, status,
	phone_number, phone_gateway, receipt_url, gateway_response, gateway_reference,
	payment_date, settled_at, updated_at`

type PostgresPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPostgresPaymentRepository(db *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		db: db,
	}
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		payment domain.Payment
		id      pgtype.UUID
		amount  pgtype.Numeric
	)

	err := row.Scan(
		&id,
		&payment.BookingID,
		&payment.StudentID,
		&amount,
		&payment.Currency,
		&payment.PaymentMethod,
		&payment.TransactionID,
		&payment.VerificationToken,
		&payment.Status,
		&payment.PhoneNumber,
		&payment.PhoneGateway,
		&payment.ReceiptUrl,
		&payment.GatewayResponse,
		&payment.GatewayReference,
		&payment.PaymentDate,
		&payment.SettledAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.ID = uuid.UUID(id.Bytes)
	payment.Amount = fromNumeric(amount)

	return &payment, nil
}

func (p *PostgresPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id,
			booking_id,
			student_id,
			amount,
			currency,
			payment_method,
			transaction_id,
			verification_token,
			status,
			phone_number,
			phone_gateway,
			payment_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING updated_at
	`

	err := p.db.QueryRow(
		ctx,
		query,
		pgtype.UUID{Bytes: payment.ID, Valid: true},
		payment.BookingID,
		payment.StudentID,
		toNumeric(payment.Amount),
		payment.Currency,
		payment.PaymentMethod,
		payment.TransactionID,
		payment.VerificationToken,
		payment.Status,
		payment.PhoneNumber,
		payment.PhoneGateway,
		payment.PaymentDate,
	).Scan(&payment.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation &&
			pgErr.ConstraintName == onePendingPerBookingIndex {
			return domain.ErrPaymentAlreadyPending
		}

		return err
	}

	return nil
}

func (p *PostgresPaymentRepository) getOne(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where

	payment, err := scanPayment(p.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return payment, nil
}

func (p *PostgresPaymentRepository) GetByTransactionId(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return p.getOne(ctx, "transaction_id = $1", transactionID)
}

func (p *PostgresPaymentRepository) GetByVerificationToken(ctx context.Context, token string) (*domain.Payment, error) {
	return p.getOne(ctx, "verification_token = $1", token)
}

func (p *PostgresPaymentRepository) GetPendingByBookingId(ctx context.Context, bookingID int) (*domain.Payment, error) {
	return p.getOne(ctx, "booking_id = $1 AND status = 'pending'", bookingID)
}

// CompareAndSetStatus confirms the booking in the same transaction when the payment becomes successful.
func (p *PostgresPaymentRepository) CompareAndSetStatus(
	ctx context.Context,
	transactionID string,
	expected, next domain.PaymentStatus,
	fields domain.SettlementFields) (*domain.Payment, error) {

	var payment *domain.Payment

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			UPDATE payments
			SET status = $1,
				receipt_url = COALESCE($2, receipt_url),
				gateway_response = COALESCE($3, gateway_response),
				settled_at = CASE WHEN $4 THEN NOW() ELSE settled_at END,
				updated_at = NOW()
			WHERE transaction_id = $5 AND status = $6
			RETURNING ` + paymentColumns

		settles := expected == domain.PaymentStatusPending

		var err error
		payment, err = scanPayment(tx.QueryRow(
			ctx,
			query,
			next,
			fields.ReceiptUrl,
			fields.GatewayResponse,
			settles,
			transactionID,
			expected,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrEditConflict
			}

			return err
		}

		switch next {
		case domain.PaymentStatusSuccessful:
			query = `
				UPDATE bookings
				SET status = 'confirmed', updated_at = NOW()
				WHERE id = $1 AND status = 'pending'
			`
		case domain.PaymentStatusRefunded:
			// the money went back, so the bed is released
			query = `
				UPDATE bookings
				SET status = 'cancelled', updated_at = NOW()
				WHERE id = $1 AND status = 'confirmed'
			`
		default:
			return nil
		}

		_, err = tx.Exec(ctx, query, payment.BookingID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return payment, nil
}

func (p *PostgresPaymentRepository) SetGatewayReference(ctx context.Context, transactionID, reference string) error {
	query := `UPDATE payments
		SET gateway_reference = $1, updated_at = NOW()
		WHERE transaction_id = $2
	`

	tag, err := p.db.Exec(ctx, query, reference, transactionID)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}

	return nil
}

func (p *PostgresPaymentRepository) ClaimPendingForReconciliation(
	ctx context.Context,
	before, claimedAt time.Time,
	limit int) ([]*domain.Payment, error) {

	query := `UPDATE payments
		SET reconciled_at = $2
		WHERE id IN (
			SELECT id FROM payments
			WHERE status = 'pending' AND payment_date < $1
			ORDER BY reconciled_at NULLS FIRST, payment_date
			LIMIT $3
			FOR UPDATE SKIP LOCKED)
		RETURNING ` + paymentColumns

	rows, err := p.db.Query(ctx, query, before, claimedAt, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []*domain.Payment{}

	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}

		payments = append(payments, payment)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}
