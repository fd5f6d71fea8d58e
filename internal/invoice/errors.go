package invoice

import (
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
)

var (
	ErrNotFound              = errors.New("invoice not found")
	ErrInvalidState          = errors.New("invalid invoice state")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrCreditLimitExceeded   = errors.New("credit limit exceeded")
	ErrPaymentExceedsBalance = errors.New("payment exceeds balance due")
	ErrValidation            = errors.New("validation failed")
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrCustomerInactive      = errors.New("customer inactive")
	ErrDuplicateNumber       = errors.New("duplicate invoice number")
)

// ValidationError rejects input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StateError reports an operation that is illegal in the invoice's current status.
type StateError struct {
	Op   string
	From Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s invoice in status %s", e.Op, e.From)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// collaboratorError maps stock and customer errors onto the invoice taxonomy while
// keeping the original message.
func collaboratorError(err error) error {
	var sentinel error

	switch {
	case errors.Is(err, stock.ErrInsufficientStock):
		sentinel = ErrInsufficientStock
	case errors.Is(err, stock.ErrProductNotFound):
		sentinel = ErrProductNotFound
	case errors.Is(err, stock.ErrInvalidQuantity):
		sentinel = ErrValidation
	case errors.Is(err, customer.ErrCreditLimitExceeded):
		sentinel = ErrCreditLimitExceeded
	case errors.Is(err, customer.ErrNotFound):
		sentinel = ErrCustomerNotFound
	case errors.Is(err, customer.ErrInactive):
		sentinel = ErrCustomerInactive
	case errors.Is(err, customer.ErrInvalidAmount):
		sentinel = ErrValidation
	default:
		return err
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}

// Kind names the error category for transport layers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrCreditLimitExceeded):
		return "credit_limit_exceeded"
	case errors.Is(err, ErrCustomerInactive):
		return "customer_inactive"
	case errors.Is(err, ErrPaymentExceedsBalance):
		return "payment_exceeds_balance"
	case errors.Is(err, ErrDuplicateNumber):
		return "duplicate_number"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return "internal"
	}
}
