package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/hostel-booking/internal/domain"
)

type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db: db,
	}
}

func (p *PostgresBookingRepository) GetById(ctx context.Context, id int) (*domain.Booking, error) {
	query := `SELECT id, student_id, hostel_name, room_label, check_in, check_out,
			total_price, currency, status, created_at, updated_at
		FROM bookings
		WHERE id = $1`

	var (
		booking    domain.Booking
		totalPrice pgtype.Numeric
	)

	err := p.db.QueryRow(ctx, query, id).Scan(
		&booking.ID,
		&booking.StudentID,
		&booking.HostelName,
		&booking.RoomLabel,
		&booking.CheckIn,
		&booking.CheckOut,
		&totalPrice,
		&booking.Currency,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	booking.TotalPrice = fromNumeric(totalPrice)

	return &booking, nil
}
