package customer

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Customer holds the credit-related fields of a customer.
// A zero CreditLimit means no limit is configured.
type Customer struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Status         Status
	CreditLimit    decimal.Decimal
	CurrentBalance decimal.Decimal
	UpdatedAt      *time.Time
}

// HasCreditLimit reports whether charges against this customer are capped.
func (c *Customer) HasCreditLimit() bool {
	return c.CreditLimit.IsPositive()
}

// AvailableCredit is CreditLimit - CurrentBalance, or zero when no limit is configured.
func (c *Customer) AvailableCredit() decimal.Decimal {
	if !c.HasCreditLimit() {
		return decimal.Zero
	}

	return c.CreditLimit.Sub(c.CurrentBalance)
}

// Decision is the outcome of a credit check.
type Decision struct {
	Approved        bool
	Reason          error
	AvailableCredit decimal.Decimal
	Unlimited       bool
}
