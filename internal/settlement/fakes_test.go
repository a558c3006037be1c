package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/shopspring/decimal"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type memoryPayments struct {
	mu         sync.Mutex
	byTxID     map[string]*domain.Payment
	reconciled map[string]time.Time
	writes     int
}

func newMemoryPayments(payments ...*domain.Payment) *memoryPayments {
	m := &memoryPayments{
		byTxID:     make(map[string]*domain.Payment),
		reconciled: make(map[string]time.Time),
	}
	for _, p := range payments {
		m.byTxID[p.TransactionID] = p
	}

	return m
}

func (m *memoryPayments) Create(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byTxID {
		if existing.BookingID == p.BookingID && existing.Status == domain.PaymentStatusPending {
			return domain.ErrPaymentAlreadyPending
		}
	}

	stored := *p
	m.byTxID[p.TransactionID] = &stored

	return nil
}

func (m *memoryPayments) GetByTransactionId(_ context.Context, transactionID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byTxID[transactionID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	cp := *p
	return &cp, nil
}

func (m *memoryPayments) GetByVerificationToken(_ context.Context, token string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.byTxID {
		if p.VerificationToken == token {
			cp := *p
			return &cp, nil
		}
	}

	return nil, domain.ErrRecordNotFound
}

func (m *memoryPayments) GetPendingByBookingId(_ context.Context, bookingID int) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.byTxID {
		if p.BookingID == bookingID && p.Status == domain.PaymentStatusPending {
			cp := *p
			return &cp, nil
		}
	}

	return nil, domain.ErrRecordNotFound
}

func (m *memoryPayments) CompareAndSetStatus(
	_ context.Context,
	transactionID string,
	expected, next domain.PaymentStatus,
	fields domain.SettlementFields) (*domain.Payment, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byTxID[transactionID]
	if !ok || p.Status != expected {
		return nil, domain.ErrEditConflict
	}

	p.Status = next
	if fields.ReceiptUrl != nil {
		p.ReceiptUrl = fields.ReceiptUrl
	}
	if fields.GatewayResponse != nil {
		p.GatewayResponse = fields.GatewayResponse
	}
	m.writes++

	cp := *p
	return &cp, nil
}

func (m *memoryPayments) SetGatewayReference(_ context.Context, transactionID, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byTxID[transactionID]
	if !ok {
		return domain.ErrRecordNotFound
	}

	p.GatewayReference = &reference
	return nil
}

func (m *memoryPayments) ClaimPendingForReconciliation(
	_ context.Context,
	before, claimedAt time.Time,
	limit int) ([]*domain.Payment, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*domain.Payment
	for _, p := range m.byTxID {
		if p.Status == domain.PaymentStatusPending && p.PaymentDate.Before(before) {
			pending = append(pending, p)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		ri, iok := m.reconciled[pending[i].TransactionID]
		rj, jok := m.reconciled[pending[j].TransactionID]
		if iok != jok {
			return !iok
		}
		if !ri.Equal(rj) {
			return ri.Before(rj)
		}
		return pending[i].PaymentDate.Before(pending[j].PaymentDate)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]*domain.Payment, 0, len(pending))
	for _, p := range pending {
		m.reconciled[p.TransactionID] = claimedAt
		cp := *p
		claimed = append(claimed, &cp)
	}

	return claimed, nil
}

func (m *memoryPayments) reconciledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.reconciled)
}

func (m *memoryPayments) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writes
}

func (m *memoryPayments) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.byTxID)
}

type memoryBookings map[int]*domain.Booking

func (m memoryBookings) GetById(_ context.Context, id int) (*domain.Booking, error) {
	b, ok := m[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	cp := *b
	return &cp, nil
}

type memoryLocker struct {
	mu    sync.Mutex
	held  map[string]string
	seq   int
	err   error
	taken int
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: make(map[string]string)}
}

func (l *memoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return "", false, l.err
	}

	if _, ok := l.held[key]; ok {
		return "", false, nil
	}

	l.seq++
	token := strconv.Itoa(l.seq)
	l.held[key] = token
	l.taken++

	return token, true, nil
}

func (l *memoryLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] == token {
		delete(l.held, key)
	}

	return nil
}

func (l *memoryLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.held[key]
	return ok
}

type step struct {
	result *domain.VerificationResult
	err    error
}

func completed() step {
	return step{result: &domain.VerificationResult{Status: domain.VerificationStatusCompleted}}
}

func completedWithAmount(amount int64) step {
	a := decimal.NewFromInt(amount)
	return step{result: &domain.VerificationResult{Status: domain.VerificationStatusCompleted, Amount: &a}}
}

func pending() step {
	return step{result: &domain.VerificationResult{Status: domain.VerificationStatusPending}}
}

func rejected() step {
	return step{result: &domain.VerificationResult{Status: domain.VerificationStatusFailed}}
}

func broken(msg string) step {
	return step{err: errors.New(msg)}
}

// scriptedGateway plays steps in order and repeats the last one.
type scriptedGateway struct {
	mu      sync.Mutex
	steps   []step
	calls   atomic.Int32
	probes  atomic.Int32
	release chan struct{}

	availability domain.Availability
}

func newScriptedGateway(steps ...step) *scriptedGateway {
	return &scriptedGateway{
		steps:        steps,
		availability: domain.Availability{Available: true, Message: "ok"},
	}
}

func (g *scriptedGateway) Verify(ctx context.Context, _ string) (*domain.VerificationResult, error) {
	n := int(g.calls.Add(1))

	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx := n - 1
	if idx >= len(g.steps) {
		idx = len(g.steps) - 1
	}

	st := g.steps[idx]
	return st.result, st.err
}

func (g *scriptedGateway) CheckAvailability(context.Context) domain.Availability {
	g.probes.Add(1)
	return g.availability
}

func (g *scriptedGateway) callCount() int {
	return int(g.calls.Load())
}

type initiatingGateway struct {
	*scriptedGateway
	checkout *domain.GatewayCheckout
	err      error
}

func (g *initiatingGateway) Initiate(context.Context, *domain.Payment, *domain.Booking) (*domain.GatewayCheckout, error) {
	if g.err != nil {
		return nil, g.err
	}

	return g.checkout, nil
}

type deadlineGateway struct {
	*scriptedGateway
	hadDeadline bool
}

func (g *deadlineGateway) Verify(ctx context.Context, transactionID string) (*domain.VerificationResult, error) {
	_, g.hadDeadline = ctx.Deadline()
	return g.scriptedGateway.Verify(ctx, transactionID)
}

// referenceGateway answers through the reference stored at initiation.
type referenceGateway struct {
	*scriptedGateway
	result step

	mu         sync.Mutex
	references []string
}

func (g *referenceGateway) VerifyReference(_ context.Context, _, reference string) (*domain.VerificationResult, error) {
	g.mu.Lock()
	g.references = append(g.references, reference)
	g.mu.Unlock()

	return g.result.result, g.result.err
}

func (g *referenceGateway) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.references...)
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()

	return ctx.Err()
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]time.Duration(nil), r.waits...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	settled []string
}

func (n *recordingNotifier) PaymentSettled(_ context.Context, p *domain.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.settled = append(n.settled, p.TransactionID)
}

type memoryAvailabilityCache struct {
	entries map[domain.PaymentMethod]domain.Availability
	getErr  error
}

func (c *memoryAvailabilityCache) Get(_ context.Context, method domain.PaymentMethod) (*domain.Availability, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}

	a, ok := c.entries[method]
	if !ok {
		return nil, false, nil
	}

	return &a, true, nil
}

func (c *memoryAvailabilityCache) Set(_ context.Context, method domain.PaymentMethod, a domain.Availability, _ time.Duration) error {
	c.entries[method] = a
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func pendingPayment(txid string, amount int64) *domain.Payment {
	return &domain.Payment{
		BookingID:         1,
		StudentID:         1,
		Amount:            decimal.NewFromInt(amount),
		Currency:          "GHS",
		PaymentMethod:     domain.PaymentMethodMobileMoney,
		TransactionID:     txid,
		VerificationToken: "TOKEN-" + txid,
		Status:            domain.PaymentStatusPending,
		PaymentDate:       time.Now().Add(-time.Hour),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}

	return cfg
}
