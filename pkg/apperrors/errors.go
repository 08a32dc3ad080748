package apperrors

import (
	"errors"
	"fmt"
)

// Standardized Exchange Errors
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrSystemOverload        = errors.New("system overload")
	ErrTimestampOutOfBounds  = errors.New("timestamp out of bounds")
)

// InvalidPriceError is returned by create_order when the submitted
// price is rejected by the exchange's tick rules or price bands.
type InvalidPriceError struct {
	Price string
	Cause error
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %s: %v", e.Price, e.Cause)
}

func (e *InvalidPriceError) Unwrap() error { return e.Cause }

// ExceedOrderLimitError is returned by create_order when the exchange
// reports the account has reached its open-order cap.
type ExceedOrderLimitError struct {
	Limit int
}

func (e *ExceedOrderLimitError) Error() string {
	return fmt.Sprintf("exceeded exchange order limit of %d", e.Limit)
}
