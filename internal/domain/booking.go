package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID         int
	StudentID  int
	HostelName string
	RoomLabel  string
	CheckIn    time.Time
	CheckOut   time.Time
	TotalPrice decimal.Decimal
	Currency   string
	Status     BookingStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type BookingRepository interface {
	GetById(ctx context.Context, id int) (*Booking, error)
}
