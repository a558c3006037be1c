package settlement

import (
	"context"
	"log/slog"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/metinatakli/hostel-booking/internal/settlement"

type metrics struct {
	tracer   trace.Tracer
	attempts metric.Int64Counter
	outcomes metric.Int64Counter
}

// newMetrics binds to the global providers, which are no-ops until telemetry is initialized.
func newMetrics(logger *slog.Logger) *metrics {
	meter := otel.Meter(instrumentationName)

	attempts, err := meter.Int64Counter(
		"settlement.verification.attempts",
		metric.WithDescription("Gateway verification calls by result"),
	)
	if err != nil {
		logger.Warn("failed to create attempts counter", "error", err)
		attempts = noop.Int64Counter{}
	}

	outcomes, err := meter.Int64Counter(
		"settlement.verification.outcomes",
		metric.WithDescription("Verification sequences by outcome"),
	)
	if err != nil {
		logger.Warn("failed to create outcomes counter", "error", err)
		outcomes = noop.Int64Counter{}
	}

	return &metrics{
		tracer:   otel.Tracer(instrumentationName),
		attempts: attempts,
		outcomes: outcomes,
	}
}

func (m *metrics) recordAttempt(ctx context.Context, method domain.PaymentMethod, result string) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment.method", string(method)),
		attribute.String("result", result),
	))
}

func (m *metrics) recordOutcome(ctx context.Context, method domain.PaymentMethod, outcome string) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment.method", string(method)),
		attribute.String("outcome", outcome),
	))
}
