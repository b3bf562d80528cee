package domain

import (
	"errors"
	"fmt"
)

// Authenticity failures. Filtered before the retry path.
var (
	ErrMissingHeaders    = errors.New("missing authenticity headers")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrStaleNotification = errors.New("stale webhook notification")
	ErrUnsupportedEvent  = errors.New("unsupported webhook event type")
)

// Not found. Retried by the consumer wrapper, then dead-lettered.
var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrSaleNotFound       = errors.New("sale not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrGymNotFound        = errors.New("gym not found")
)

// Business rule violations. Never retried.
var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrMembershipBanned    = errors.New("membership is banned")
	ErrMembershipExists    = errors.New("user already has a membership in this gym")
	ErrInvalidSubject      = errors.New("payment must reference a membership or a sale, not both")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidQuantity     = errors.New("sale needs at least one line with a positive quantity")
	ErrInvalidMethod       = errors.New("payment method not allowed here")
	ErrPaymentNotSettlable = errors.New("payment is not pending")
	ErrPaymentNotCompleted = errors.New("payment is not completed")
	ErrMalformedEvent      = errors.New("malformed event")
)

// ErrConcurrencyConflict means the row version moved between read and write.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// InsufficientStockError carries the shortage details and unwraps to ErrInsufficientStock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsPermanent reports errors that retrying cannot fix.
func IsPermanent(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrMembershipBanned),
		errors.Is(err, ErrMembershipExists),
		errors.Is(err, ErrInvalidSubject),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrPaymentNotSettlable),
		errors.Is(err, ErrMalformedEvent):
		return true
	}
	return false
}

// IsAuthenticity reports webhook failures that are acknowledged and ignored.
func IsAuthenticity(err error) bool {
	return errors.Is(err, ErrMissingHeaders) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrStaleNotification)
}

// IsNotFound reports any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrMembershipNotFound) ||
		errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrGymNotFound)
}
