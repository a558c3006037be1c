package mocks

import (
	"context"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Verify(ctx context.Context, transactionID string) (*domain.VerificationResult, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerificationResult), args.Error(1)
}

func (m *MockPaymentGateway) CheckAvailability(ctx context.Context) domain.Availability {
	args := m.Called(ctx)
	return args.Get(0).(domain.Availability)
}
