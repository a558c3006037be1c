package mocks

import (
	"context"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/metinatakli/hostel-booking/internal/settlement"
	"github.com/stretchr/testify/mock"
)

type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) Initiate(ctx context.Context, in settlement.InitiateInput) (*settlement.Initiated, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Initiated), args.Error(1)
}

func (m *MockSettlementService) Verify(ctx context.Context, transactionID string) (*settlement.Outcome, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Outcome), args.Error(1)
}

func (m *MockSettlementService) VerifyByToken(ctx context.Context, verificationToken string) (*settlement.Outcome, error) {
	args := m.Called(ctx, verificationToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Outcome), args.Error(1)
}

func (m *MockSettlementService) Get(ctx context.Context, transactionID string, studentID int) (*domain.Payment, error) {
	args := m.Called(ctx, transactionID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockSettlementService) Refund(ctx context.Context, transactionID string, studentID int) (*domain.Payment, error) {
	args := m.Called(ctx, transactionID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockSettlementService) CheckAvailability(ctx context.Context, method domain.PaymentMethod) domain.Availability {
	args := m.Called(ctx, method)
	return args.Get(0).(domain.Availability)
}
