package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/metinatakli/hostel-booking/internal/mailer"
)

// receiptNotifier mails a receipt to the student once a payment settles.
type receiptNotifier struct {
	logger     *slog.Logger
	mailer     mailer.Mailer
	users      domain.UserRepository
	bookings   domain.BookingRepository
	receiptUrl string
	// done receives a value after every send attempt when set.
	done chan<- struct{}
}

func (app *Application) newReceiptNotifier() *receiptNotifier {
	return &receiptNotifier{
		logger:     app.logger,
		mailer:     app.mailer,
		users:      app.userRepo,
		bookings:   app.bookingRepo,
		receiptUrl: app.config.SMTP.ReceiptUrl,
	}
}

func (n *receiptNotifier) PaymentSettled(ctx context.Context, payment *domain.Payment) {
	go func(ctx context.Context) {
		logger := n.logger.With("transaction_id", payment.TransactionID)

		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic occurred during sending payment receipt", "panic", err)
			}

			if n.done != nil {
				n.done <- struct{}{}
			}
		}()

		err := n.send(ctx, payment)
		if err != nil {
			logger.Error("failed to send payment receipt", "error", err)
			return
		}

		logger.Info("payment receipt sent")
	}(context.WithoutCancel(ctx))
}

func (n *receiptNotifier) send(ctx context.Context, payment *domain.Payment) error {
	user, err := n.users.GetById(ctx, payment.StudentID)
	if err != nil {
		return fmt.Errorf("get student %d: %w", payment.StudentID, err)
	}

	booking, err := n.bookings.GetById(ctx, payment.BookingID)
	if err != nil {
		return fmt.Errorf("get booking %d: %w", payment.BookingID, err)
	}

	receiptUrl := ""
	switch {
	case payment.ReceiptUrl != nil:
		receiptUrl = *payment.ReceiptUrl
	case n.receiptUrl != "":
		receiptUrl = fmt.Sprintf(n.receiptUrl, payment.TransactionID)
	}

	data := map[string]any{
		"firstName":     user.FirstName,
		"hostelName":    booking.HostelName,
		"roomLabel":     booking.RoomLabel,
		"amount":        payment.Amount.StringFixed(2),
		"currency":      payment.Currency,
		"transactionId": payment.TransactionID,
		"paymentMethod": string(payment.PaymentMethod),
		"receiptUrl":    receiptUrl,
	}

	return n.mailer.Send(user.Email, mailer.PaymentReceiptTemplate, data)
}
