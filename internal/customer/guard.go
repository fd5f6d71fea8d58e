package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

var (
	ErrNotFound            = errors.New("customer not found")
	ErrInactive            = errors.New("customer inactive")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Repository performs the balance mutations. Each mutating method must be a single
// atomic statement against the customer row.
//
//go:generate mockgen -source=guard.go -destination=repository_mock.go -package=customer
type Repository interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	// Charge adds amount to the running balance only if the customer is active and the
	// credit limit (when configured) still holds afterwards.
	Charge(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*Customer, error)
	// ApplyPayment and Refund subtract amount from the running balance, floored at zero.
	ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*Customer, error)
	Refund(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*Customer, error)
	// RecomputeBalance rebuilds the balance from the customer's open invoices.
	RecomputeBalance(ctx context.Context, id uuid.UUID) (*Customer, error)
}

// Guard approves charges against a customer's credit and moves the running balance.
type Guard struct {
	repo Repository
}

func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

func checkAmount(amount decimal.Decimal) error {
	if err := money.CheckAmount(amount); err != nil {
		return fmt.Errorf("%w: %s %v", ErrInvalidAmount, amount, err)
	}

	return nil
}

// Get returns the customer's current credit view.
func (g *Guard) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return g.repo.GetCustomer(ctx, id)
}

// CheckCreditAvailable decides whether proposedCharge could be added to the balance.
// It never mutates anything; a rejection is reported through Decision.Reason.
func (g *Guard) CheckCreditAvailable(ctx context.Context, id uuid.UUID, proposedCharge decimal.Decimal) (Decision, error) {
	if err := checkAmount(proposedCharge); err != nil {
		return Decision{}, err
	}

	c, err := g.repo.GetCustomer(ctx, id)
	if err != nil {
		return Decision{}, err
	}

	return decide(c, proposedCharge), nil
}

func decide(c *Customer, proposedCharge decimal.Decimal) Decision {
	if c.Status != StatusActive {
		return Decision{Reason: ErrInactive, AvailableCredit: c.AvailableCredit()}
	}

	if !c.HasCreditLimit() {
		return Decision{Approved: true, Unlimited: true}
	}

	if c.CurrentBalance.Add(proposedCharge).GreaterThan(c.CreditLimit) {
		return Decision{Reason: ErrCreditLimitExceeded, AvailableCredit: c.AvailableCredit()}
	}

	return Decision{Approved: true, AvailableCredit: c.AvailableCredit()}
}

// Charge raises the running balance by amount when an invoice becomes receivable.
func (g *Guard) Charge(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*Customer, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	c, err := g.repo.Charge(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("charging customer %s: %w", id, err)
	}

	slog.Debug("customer charged", "customer_id", id, "amount", money.Format(amount),
		"balance", money.Format(c.CurrentBalance))

	return c, nil
}

// ApplyPayment lowers the running balance by amount, never below zero.
func (g *Guard) ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*Customer, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	c, err := g.repo.ApplyPayment(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("applying payment to customer %s: %w", id, err)
	}

	slog.Debug("customer payment applied", "customer_id", id, "amount", money.Format(amount),
		"balance", money.Format(c.CurrentBalance))

	return c, nil
}

// ReverseCharge removes the unpaid remainder of a cancelled invoice from the balance.
func (g *Guard) ReverseCharge(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*Customer, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	c, err := g.repo.Refund(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("reversing charge for customer %s: %w", id, err)
	}

	return c, nil
}

// RepairBalance recomputes the balance from invoices. It is a repair tool for drifted
// rows; the incremental mutations above remain the source of truth.
func (g *Guard) RepairBalance(ctx context.Context, id uuid.UUID) (*Customer, error) {
	before, err := g.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	after, err := g.repo.RecomputeBalance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recomputing balance for customer %s: %w", id, err)
	}

	if !before.CurrentBalance.Equal(after.CurrentBalance) {
		slog.Warn("customer balance drift repaired", "customer_id", id,
			"before", money.Format(before.CurrentBalance), "after", money.Format(after.CurrentBalance))
	}

	return after, nil
}
