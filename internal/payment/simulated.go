package payment

import (
	"context"
	"sync"
	"time"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/shopspring/decimal"
)

// SimulatedGateway stands in for a bank whose transfers are confirmed
// out of band. A payment reports completed once SettleAfter has elapsed
// since it was initiated, unless an outcome was forced with Resolve.
type SimulatedGateway struct {
	SettleAfter time.Duration

	mu        sync.Mutex
	available bool
	started   map[string]simulatedTransfer
	forced    map[string]domain.VerificationStatus
	now       func() time.Time
}

type simulatedTransfer struct {
	at     time.Time
	amount decimal.Decimal
}

func NewSimulatedGateway(settleAfter time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		SettleAfter: settleAfter,
		available:   true,
		started:     make(map[string]simulatedTransfer),
		forced:      make(map[string]domain.VerificationStatus),
		now:         time.Now,
	}
}

func (g *SimulatedGateway) Initiate(
	ctx context.Context,
	payment *domain.Payment,
	booking *domain.Booking) (*domain.GatewayCheckout, error) {

	g.mu.Lock()
	defer g.mu.Unlock()

	g.started[payment.TransactionID] = simulatedTransfer{at: g.now(), amount: payment.Amount}

	return &domain.GatewayCheckout{Reference: "SIM-" + payment.TransactionID}, nil
}

func (g *SimulatedGateway) Verify(ctx context.Context, transactionID string) (*domain.VerificationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.available {
		return nil, domain.ErrGatewayUnavailable
	}

	if status, ok := g.forced[transactionID]; ok {
		return &domain.VerificationResult{Status: status}, nil
	}

	transfer, ok := g.started[transactionID]
	if !ok || g.now().Sub(transfer.at) < g.SettleAfter {
		return &domain.VerificationResult{Status: domain.VerificationStatusPending}, nil
	}

	amount := transfer.amount

	return &domain.VerificationResult{
		Status: domain.VerificationStatusCompleted,
		Amount: &amount,
	}, nil
}

func (g *SimulatedGateway) CheckAvailability(ctx context.Context) domain.Availability {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.available {
		return domain.Availability{Available: false, Message: "Bank transfers are temporarily unavailable"}
	}

	return domain.Availability{Available: true, Message: "Bank transfers are available"}
}

// Resolve forces the outcome reported for transactionID.
func (g *SimulatedGateway) Resolve(transactionID string, status domain.VerificationStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.forced[transactionID] = status
}

func (g *SimulatedGateway) SetAvailable(available bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.available = available
}
