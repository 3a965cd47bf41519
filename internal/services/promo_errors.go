package services

import (
	"errors"
	"fmt"

	domain "github.com/clovermart/storefront/internal/domain"
)

var (
	// ErrPromoInvalidCode signals the supplied promo code is missing or malformed.
	ErrPromoInvalidCode = errors.New("promo: invalid code")
	// ErrPromoNotFound indicates no promo code exists for the provided code.
	ErrPromoNotFound = errors.New("promo: not found")
	// ErrPromoRejected indicates the code exists but fails validation; the
	// wrapped RejectionError carries the enumerated reason.
	ErrPromoRejected = errors.New("promo: rejected")
	// ErrPromoUnavailable indicates the promo backend could not be reached.
	ErrPromoUnavailable = errors.New("promo: unavailable")
)

// RejectionError carries the enumerated reason a promo code failed validation.
type RejectionError struct {
	Code   string
	Reason domain.PromoRejectionReason
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("promo: rejected: %s (%s)", e.Code, e.Reason)
}

// Is reports ErrPromoRejected identity so callers can match with errors.Is.
func (e *RejectionError) Is(target error) bool {
	return target == ErrPromoRejected
}

// NewRejectionError constructs a rejection for the given code and reason.
func NewRejectionError(code string, reason domain.PromoRejectionReason) *RejectionError {
	return &RejectionError{Code: code, Reason: reason}
}

// RejectionReason extracts the enumerated reason when err is a promo rejection.
func RejectionReason(err error) (domain.PromoRejectionReason, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason, true
	}
	return "", false
}
