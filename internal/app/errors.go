package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/hostel-booking/api"
	"github.com/metinatakli/hostel-booking/internal/domain"
	appvalidator "github.com/metinatakli/hostel-booking/internal/validator"
)

const (
	ErrInternalServer          = "The server encountered a problem and could not process your request"
	ErrNotFound                = "The requested resource not found"
	ErrMethodNotAllowed        = "The requested method is not supported for this resource"
	ErrUnauthorized            = "You must be authenticated to access this resource"
	ErrFailedValidation        = "One or more fields are invalid"
	ErrPaymentNotFound         = "Payment not found"
	ErrVerificationUnavailable = "The payment gateway could not confirm the payment, please try again later"
	ErrGatewayInitiation       = "The payment gateway could not start the payment, please try again later"
)

func (app *Application) logError(r *http.Request, err error) {
	app.contextGetLogger(r).Error(err.Error())
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := api.ErrorResponse{
		Message:   message,
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: time.Now(),
	}

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)

	app.errorResponse(w, r, http.StatusInternalServerError, ErrInternalServer)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, ErrNotFound)
}

func (app *Application) notFoundResponseWithErr(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusNotFound, err.Error())
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) unauthorizedAccessResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusUnauthorized, ErrUnauthorized)
}

func (app *Application) editConflictResponseWithErr(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusConflict, err.Error())
}

func (app *Application) gatewayErrorResponse(w http.ResponseWriter, r *http.Request, message string, err error) {
	app.contextGetLogger(r).Warn("payment gateway error", "error", err)

	app.errorResponse(w, r, http.StatusBadGateway, message)
}

// failedValidationResponse writes a 400 listing every invalid field. It accepts
// both validator errors and domain validation errors.
func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors []api.ValidationError

	var (
		fieldErrs validator.ValidationErrors
		domainErr *domain.ValidationError
	)

	switch {
	case errors.As(err, &fieldErrs):
		for _, fieldErr := range fieldErrs {
			validationErrors = append(validationErrors, api.ValidationError{
				Field: lowerFirst(fieldErr.Field()),
				Issue: appvalidator.ValidationMessage(fieldErr),
			})
		}
	case errors.As(err, &domainErr):
		validationErrors = append(validationErrors, api.ValidationError{
			Field: domainErr.Field,
			Issue: domainErr.Issue,
		})
	default:
		app.badRequestResponse(w, r, err)
		return
	}

	resp := api.ValidationErrorResponse{
		Message:          ErrFailedValidation,
		RequestId:        middleware.GetReqID(r.Context()),
		Timestamp:        time.Now(),
		ValidationErrors: validationErrors,
	}

	err = app.writeJSON(w, http.StatusBadRequest, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// settlementErrorResponse maps errors from the settlement service onto HTTP responses.
func (app *Application) settlementErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		app.failedValidationResponse(w, r, err)
	case errors.Is(err, domain.ErrRecordNotFound):
		app.notFoundResponseWithErr(w, r, fmt.Errorf("%s", ErrPaymentNotFound))
	case domain.IsConflict(err):
		app.editConflictResponseWithErr(w, r, conflictMessage(err))
	case errors.Is(err, domain.ErrVerificationFailedAfterRetries):
		app.gatewayErrorResponse(w, r, ErrVerificationUnavailable, err)
	case errors.Is(err, domain.ErrGatewayUnavailable):
		app.gatewayErrorResponse(w, r, ErrGatewayInitiation, err)
	default:
		app.serverErrorResponse(w, r, err)
	}
}

// conflictMessage strips wrapping detail so clients see only the sentinel text.
func conflictMessage(err error) error {
	for _, sentinel := range []error{
		domain.ErrPaymentAlreadyPending,
		domain.ErrBookingAlreadyPaid,
		domain.ErrVerificationInProgress,
		domain.ErrInvalidStatusTransition,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	return domain.ErrEditConflict
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}

	return string(s[0]|0x20) + s[1:]
}
