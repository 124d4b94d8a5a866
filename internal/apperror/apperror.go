// Package apperror maps internal failures onto the user-facing error
// taxonomy: input errors, connectivity errors, store errors, and partial
// multi-write failures.
package apperror

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	errRequired       = errors.New("is required")
	errCodeTooShort   = errors.New("must be at least 4 digits")
	errCodeNotNumeric = errors.New("must contain only digits")
	errBadQuantity    = errors.New("must be 1/4 or 2/4")
	errBadEmail       = errors.New("must be a valid email address")
	errShortPassword  = errors.New("must be at least 8 characters long")
	errMustBePositive = errors.New("must be a positive amount")
	errBadMethod      = errors.New("must be pix or cash")
)

var customErrors = map[string]error{
	"ConfirmRequest.Code.required":                     errRequired,
	"ConfirmRequest.Code.min":                          errCodeTooShort,
	"ConfirmRequest.Code.numeric":                      errCodeNotNumeric,
	"ConfirmRequest.Quantity.required":                 errRequired,
	"ConfirmRequest.Quantity.oneof":                    errBadQuantity,
	"RegisterRequest.Name.required":                    errRequired,
	"RegisterRequest.Email.required":                   errRequired,
	"RegisterRequest.Email.email":                      errBadEmail,
	"RegisterRequest.Password.required":                errRequired,
	"RegisterRequest.Password.min":                     errShortPassword,
	"LoginRequest.Email.required":                      errRequired,
	"LoginRequest.Email.email":                         errBadEmail,
	"LoginRequest.Password.required":                   errRequired,
	"SubmitPaymentRequest.Amount.required":             errRequired,
	"SubmitPaymentRequest.Amount.gt":                   errMustBePositive,
	"SubmitPaymentRequest.Method.required":             errRequired,
	"SubmitPaymentRequest.Method.oneof":                errBadMethod,
	"NotifyRequest.Title.required":                     errRequired,
	"NotifyRequest.Body.required":                      errRequired,
	"UpdateSettingsRequest.SubscriptionPrice.required": errRequired,
	"UpdateSettingsRequest.SubscriptionPrice.gt":       errMustBePositive,
	"UpdateSettingsRequest.PixKey.required":            errRequired,
}

// CustomValidationError converts validator errors into a standardized format.
func CustomValidationError(err error) []map[string]string {
	errList := make([]map[string]string, 0)

	var validationErr validator.ValidationErrors

	switch {
	case errors.As(err, &validationErr):
		for _, e := range validationErr {
			field := e.StructNamespace()
			key := field + "." + e.Tag()

			errMsg := fmt.Sprintf("%s is invalid", field)
			if v, ok := customErrors[key]; ok {
				errMsg = v.Error()
			}

			errList = append(errList, map[string]string{e.Field(): errMsg})
		}
	}
	return errList
}

// PartialWriteError records a multi-record mutation that stopped partway:
// the first write landed, a later one failed, and nothing rolls the first
// back. Naming both writes lets the handler tell the operator exactly
// which record to fix.
type PartialWriteError struct {
	Done   string
	Failed string
	Err    error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s succeeded but %s failed: %v", e.Done, e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
