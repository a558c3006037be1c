package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/hostel-booking/api"
	"github.com/metinatakli/hostel-booking/internal/domain"
)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	validator.RegisterValidation("payment_method", validatePaymentMethod)

	return validator
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	method, ok := fl.Field().Interface().(api.PaymentMethod)
	if !ok {
		return false
	}

	return domain.PaymentMethod(method).IsValid()
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", strings.Replace(err.Param(), " ", " is ", 1))
	case "gt":
		return fmt.Sprintf("must be greater than %s", err.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters long", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters long", err.Param())
	case "alpha":
		return "must contain only letters"
	case "payment_method":
		return "must be one of mobile-money, bank-transfer, card"
	default:
		return "is invalid"
	}
}
