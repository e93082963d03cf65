package types

import (
	"errors"
	"fmt"
)

// Error codes. Validation and business-logic terminal codes are fatal and
// never retried; the *_timeout codes mean the attempt budget ran out and the
// purchase may still complete later.
const (
	ErrCodeValidationFailed         = "validation_failed"
	ErrCodeRemoteRequestFailed      = "remote_request_failed"
	ErrCodeRemoteUnreachable        = "remote_unreachable"
	ErrCodeAddressRequired          = "address_required"
	ErrCodeInsufficientFunds        = "insufficient_funds"
	ErrCodePaymentPayloadMissing    = "payment_payload_missing"
	ErrCodePaymentTerminallyFailed  = "payment_terminally_failed"
	ErrCodePreparationTimeout       = "preparation_timeout"
	ErrCodeConfirmationTimeout      = "confirmation_timeout"
	ErrCodeTransactionSubmitFailed  = "transaction_submission_failed"
	ErrCodePaymentAlreadySubmitted  = "payment_already_submitted"
)

// CheckoutError is the error type returned across the library.
type CheckoutError struct {
	Code    string
	Message string

	// StatusCode and Body are set for remote_request_failed errors so the
	// caller can see exactly what the checkout service answered.
	StatusCode int
	Body       string

	// Order is the snapshot that triggered the error, when one was in hand.
	Order *Order

	Err error
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// NewCheckoutError creates an error with the given code and message.
func NewCheckoutError(code, message string) *CheckoutError {
	return &CheckoutError{Code: code, Message: message}
}

// ErrorCode extracts the checkout error code from err, or "" if err is not a
// CheckoutError.
func ErrorCode(err error) string {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err is a CheckoutError with the given code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}
