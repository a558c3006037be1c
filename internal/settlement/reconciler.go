package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/robfig/cron/v3"
)

type ReconcilerConfig struct {
	Schedule string
	// MinAge keeps the sweep away from payments a client is likely still verifying.
	MinAge time.Duration
	Limit  int
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Schedule: "@every 1m",
		MinAge:   2 * time.Minute,
		Limit:    50,
	}
}

// Reconciler periodically verifies payments that were left pending.
type Reconciler struct {
	cfg      ReconcilerConfig
	service  *Service
	payments domain.PaymentRepository
	logger   *slog.Logger
	cron     *cron.Cron
	job      cron.Job
}

func NewReconciler(cfg ReconcilerConfig, service *Service, payments domain.PaymentRepository, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		cfg:      cfg,
		service:  service,
		payments: payments,
		logger:   logger,
		cron:     cron.New(),
	}

	// a sweep can outlast the schedule interval, the next tick is dropped instead
	r.job = cron.NewChain(cron.SkipIfStillRunning(cronLogger{logger})).Then(cron.FuncJob(r.sweepOnce))

	return r
}

func (r *Reconciler) sweepOnce() {
	n, err := r.Sweep(context.Background())
	if err != nil {
		r.logger.Error("reconciliation sweep failed", "error", err)
		return
	}

	if n > 0 {
		r.logger.Info("reconciliation sweep finished", "settled", n)
	}
}

func (r *Reconciler) Start() error {
	_, err := r.cron.AddJob(r.cfg.Schedule, r.job)
	if err != nil {
		return fmt.Errorf("schedule reconciler %q: %w", r.cfg.Schedule, err)
	}

	r.cron.Start()
	r.logger.Info("reconciler started", "schedule", r.cfg.Schedule)

	return nil
}

// Stop waits for a running sweep to finish or ctx to be done.
func (r *Reconciler) Stop(ctx context.Context) error {
	done := r.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep verifies a batch of stale pending payments once and returns how many
// reached a terminal status. Batches rotate through the backlog, so payments the
// gateway never settles do not keep newer ones out.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	now := r.service.now()

	pending, err := r.payments.ClaimPendingForReconciliation(ctx, now.Add(-r.cfg.MinAge), now, r.cfg.Limit)
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}

	settled := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}

		outcome, err := r.service.Verify(ctx, p.TransactionID)
		if err != nil {
			if errors.Is(err, domain.ErrVerificationInProgress) {
				continue
			}

			r.logger.Warn("reconciliation verify failed", "transaction_id", p.TransactionID, "error", err)
			continue
		}

		if outcome.Status != domain.VerificationStatusPending {
			settled++
		}
	}

	return settled, nil
}

// cronLogger reports scheduler events through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
