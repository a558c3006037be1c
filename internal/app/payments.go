package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/metinatakli/hostel-booking/api"
	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/metinatakli/hostel-booking/internal/settlement"
)

type paymentService interface {
	Initiate(ctx context.Context, in settlement.InitiateInput) (*settlement.Initiated, error)
	Verify(ctx context.Context, transactionID string) (*settlement.Outcome, error)
	VerifyByToken(ctx context.Context, verificationToken string) (*settlement.Outcome, error)
	Get(ctx context.Context, transactionID string, studentID int) (*domain.Payment, error)
	Refund(ctx context.Context, transactionID string, studentID int) (*domain.Payment, error)
	CheckAvailability(ctx context.Context, method domain.PaymentMethod) domain.Availability
}

func (app *Application) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	var input api.InitiatePaymentRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	userId := app.contextGetUserId(r)

	initiated, err := app.payments.Initiate(r.Context(), settlement.InitiateInput{
		StudentID:     userId,
		BookingID:     input.BookingId,
		PaymentMethod: domain.PaymentMethod(input.PaymentMethod),
		PhoneNumber:   input.PhoneNumber,
		PhoneGateway:  input.PhoneGateway,
		Amount:        *input.Amount,
		Currency:      input.Currency,
	})
	if err != nil {
		logger.Warn("payment initiation rejected", "booking_id", input.BookingId, "error", err)
		app.settlementErrorResponse(w, r, err)
		return
	}

	resp := toPaymentResponse(initiated.Payment)
	resp.CheckoutUrl = initiated.CheckoutUrl

	err = app.writeJSON(w, http.StatusCreated, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var input api.VerifyPaymentRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	userId := app.contextGetUserId(r)

	// ownership check before any gateway traffic
	_, err = app.payments.Get(r.Context(), input.TransactionId, userId)
	if err != nil {
		app.settlementErrorResponse(w, r, err)
		return
	}

	outcome, err := app.payments.Verify(r.Context(), input.TransactionId)
	if err != nil {
		app.settlementErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toVerifyPaymentResponse(input.TransactionId, outcome), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) PaymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var input api.CallbackRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	outcome, err := app.payments.VerifyByToken(r.Context(), input.VerificationToken)
	if err != nil {
		app.settlementErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toVerifyPaymentResponse(outcome.Payment.TransactionID, outcome), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	transactionId := chi.URLParam(r, "transactionId")
	userId := app.contextGetUserId(r)

	payment, err := app.payments.Get(r.Context(), transactionId, userId)
	if err != nil {
		app.settlementErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toPaymentResponse(payment), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) RefundPaymentHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	transactionId := chi.URLParam(r, "transactionId")
	userId := app.contextGetUserId(r)

	payment, err := app.payments.Refund(r.Context(), transactionId, userId)
	if err != nil {
		app.settlementErrorResponse(w, r, err)
		return
	}

	logger.Info("payment refunded", "transaction_id", transactionId)

	err = app.writeJSON(w, http.StatusOK, toPaymentResponse(payment), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetPaymentMethodAvailability(w http.ResponseWriter, r *http.Request) {
	method := strings.ToLower(chi.URLParam(r, "method"))

	availability := app.payments.CheckAvailability(r.Context(), domain.PaymentMethod(method))

	resp := api.AvailabilityResponse{
		PaymentMethod: method,
		Available:     availability.Available,
		Message:       availability.Message,
	}

	err := app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// toPaymentResponse exposes the public fields only. The verification token and
// raw gateway response stay internal.
func toPaymentResponse(p *domain.Payment) api.PaymentResponse {
	return api.PaymentResponse{
		PaymentId:     p.ID,
		TransactionId: p.TransactionID,
		BookingId:     p.BookingID,
		Status:        api.PaymentStatus(p.Status),
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaymentMethod: api.PaymentMethod(p.PaymentMethod),
		PhoneNumber:   p.PhoneNumber,
		PhoneGateway:  p.PhoneGateway,
		ReceiptUrl:    p.ReceiptUrl,
		PaymentDate:   p.PaymentDate,
		SettledAt:     p.SettledAt,
	}
}

func toVerifyPaymentResponse(transactionId string, o *settlement.Outcome) api.VerifyPaymentResponse {
	return api.VerifyPaymentResponse{
		TransactionId: transactionId,
		Verified:      o.Verified,
		Status:        api.VerificationStatus(o.Status),
		Message:       o.Message,
	}
}
