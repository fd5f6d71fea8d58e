package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	"github.com/MrJamesThe3rd/invoicer/internal/database"
)

type Store struct {
	db database.DBTX
}

func New(db database.DBTX) *Store {
	return &Store{db: db}
}

const customerColumns = `id, name, COALESCE(email, ''), status, credit_limit, current_balance, updated_at`

const qualified = `c.id, c.name, COALESCE(c.email, ''), c.status, c.credit_limit, c.current_balance, c.updated_at`

func scanCustomer(s database.Scanner) (*customer.Customer, error) {
	var c customer.Customer

	var statusStr string

	if err := s.Scan(&c.ID, &c.Name, &c.Email, &statusStr, &c.CreditLimit, &c.CurrentBalance, &c.UpdatedAt); err != nil {
		return nil, err
	}

	c.Status = customer.Status(statusStr)

	return &c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 AND deleted_at IS NULL`

	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customer.ErrNotFound
		}

		return nil, fmt.Errorf("getting customer: %w", err)
	}

	return c, nil
}

// Charge increments the balance in one statement guarded by the credit limit, so two
// concurrent charges cannot both squeeze under it.
func (s *Store) Charge(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*customer.Customer, error) {
	query := `
		UPDATE customers
		SET current_balance = current_balance + $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND deleted_at IS NULL
		  AND status = 'active'
		  AND (credit_limit = 0 OR current_balance + $1 <= credit_limit)
		RETURNING ` + customerColumns

	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, amount, id))
	if err == nil {
		return c, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("charging customer: %w", err)
	}

	current, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status != customer.StatusActive {
		return nil, customer.ErrInactive
	}

	return nil, fmt.Errorf("%w: available %s, requested %s",
		customer.ErrCreditLimitExceeded, current.AvailableCredit().StringFixed(2), amount.StringFixed(2))
}

func (s *Store) decrement(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*customer.Customer, error) {
	query := `
		UPDATE customers
		SET current_balance = GREATEST(current_balance - $1, 0),
		    updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
		RETURNING ` + customerColumns

	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, amount, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customer.ErrNotFound
		}

		return nil, err
	}

	return c, nil
}

func (s *Store) ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*customer.Customer, error) {
	c, err := s.decrement(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("applying payment: %w", err)
	}

	return c, nil
}

func (s *Store) Refund(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*customer.Customer, error) {
	c, err := s.decrement(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("refunding customer: %w", err)
	}

	return c, nil
}

// RecomputeBalance sets the balance to the sum of what is still owed on receivable
// invoices. Tombstoned invoices keep their charge until cancelled, so they are counted.
func (s *Store) RecomputeBalance(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	query := `
		UPDATE customers c
		SET current_balance = COALESCE((
		        SELECT SUM(i.balance_due)
		        FROM invoices i
		        WHERE i.customer_id = c.id
		          AND i.status IN ('pending', 'partially_paid')
		    ), 0),
		    updated_at = NOW()
		WHERE c.id = $1 AND c.deleted_at IS NULL
		RETURNING ` + qualified

	cu, err := scanCustomer(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customer.ErrNotFound
		}

		return nil, fmt.Errorf("recomputing balance: %w", err)
	}

	return cu, nil
}
