package repositories

import "fmt"

// PromoErrorCode enumerates repository error causes for promo ledger operations.
type PromoErrorCode string

const (
	// PromoErrorUnknown represents an unspecified failure.
	PromoErrorUnknown PromoErrorCode = "promo_unknown"
	// PromoErrorInvalidInput indicates the caller supplied invalid arguments.
	PromoErrorInvalidInput PromoErrorCode = "promo_invalid_input"
	// PromoErrorNotFound indicates no promo code document exists for the code.
	PromoErrorNotFound PromoErrorCode = "promo_not_found"
	// PromoErrorUsageExhausted indicates the usage limit forbids another increment.
	PromoErrorUsageExhausted PromoErrorCode = "promo_usage_exhausted"
)

// PromoError wraps promo-specific failures with machine readable codes.
type PromoError struct {
	Op      string
	Code    PromoErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PromoError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *PromoError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewPromoError constructs a typed promo error.
func NewPromoError(code PromoErrorCode, message string, err error) *PromoError {
	if message == "" {
		message = string(code)
	}
	return &PromoError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
