package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=invoice
type Repository interface {
	// WithTx runs fn inside one database transaction. The transaction is committed when
	// fn returns nil and may be retried once after a deadlock or serialization failure.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, int, error)
}

// Tx is the set of writes available inside a lifecycle transaction. Stock and Customers
// return repositories bound to the same transaction.
type Tx interface {
	// LockInvoice loads the invoice with its items and payments and holds its row lock
	// until the transaction ends. Tombstoned invoices are returned too.
	LockInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	NextNumber(ctx context.Context, year int) (int64, error)
	// ClaimNumber moves the year's sequence past seq so generated numbers never collide with it.
	ClaimNumber(ctx context.Context, year int, seq int64) error
	NumberExists(ctx context.Context, number string) (bool, error)
	CreateInvoice(ctx context.Context, inv *Invoice) error
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	ReplaceItems(ctx context.Context, inv *Invoice) error
	AddPayment(ctx context.Context, p *Payment) error

	Stock() stock.Repository
	Customers() customer.Repository
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type Service struct {
	repo       Repository
	now        func() time.Time
	dueDays    int
	defaultTax decimal.Decimal
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultDueDays sets how many days after the issue date an invoice falls due
// when the caller gives no due date.
func WithDefaultDueDays(days int) Option {
	return func(s *Service) { s.dueDays = days }
}

// WithDefaultTax sets the tax percentage used when the caller gives none.
func WithDefaultTax(pct decimal.Decimal) Option {
	return func(s *Service) { s.defaultTax = pct }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		now:        time.Now,
		dueDays:    30,
		defaultTax: decimal.Zero,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type ItemParams struct {
	Description        string
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	ProductID          *uuid.UUID
}

type CreateParams struct {
	CustomerID uuid.UUID
	CreatedBy  *uuid.UUID
	// Number is generated when empty.
	Number             string
	IssueDate          time.Time
	DueDate            time.Time
	PaymentMethod      string
	TaxPercentage      *decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	Notes              string
	Items              []ItemParams
}

// EditParams edits a draft. Items always replaces the whole item set, so nil or empty
// Items leaves the draft without items. The other nil fields keep their current value.
type EditParams struct {
	Items              []ItemParams
	DueDate            *time.Time
	PaymentMethod      *string
	TaxPercentage      *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	DiscountAmount     *decimal.Decimal
	Notes              *string
}

type PaymentParams struct {
	Amount    decimal.Decimal
	Method    string
	Reference string
	// PaidAt defaults to now.
	PaidAt time.Time
}

type ListFilter struct {
	Status         *Status
	CustomerID     *uuid.UUID
	StartDate      *time.Time
	EndDate        *time.Time
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
	// AsOf is the reference day for the derived overdue status. Set by the service.
	AsOf time.Time
}

type ListResult struct {
	Invoices []*Invoice
	Total    int
	Limit    int
	Offset   int
}

func (s *Service) today() time.Time {
	return DateOnly(s.now())
}

func validateItems(items []ItemParams) error {
	for i, it := range items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }

		if strings.TrimSpace(it.Description) == "" {
			return &ValidationError{Field: field("description"), Reason: "is required"}
		}

		if !it.Quantity.IsPositive() {
			return &ValidationError{Field: field("quantity"), Reason: "must be greater than zero"}
		}

		if !it.UnitPrice.IsPositive() {
			return &ValidationError{Field: field("unit_price"), Reason: "must be greater than zero"}
		}

		checks := []struct {
			name string
			err  error
		}{
			{"quantity", money.CheckAmount(it.Quantity)},
			{"unit_price", money.CheckAmount(it.UnitPrice)},
			{"discount_percentage", money.CheckPercent(it.DiscountPercentage)},
			{"discount_amount", money.CheckAmount(it.DiscountAmount)},
		}
		for _, c := range checks {
			if c.err != nil {
				return &ValidationError{Field: field(c.name), Reason: c.err.Error()}
			}
		}

		if it.ProductID != nil && *it.ProductID == uuid.Nil {
			return &ValidationError{Field: field("product_id"), Reason: "must be a valid id"}
		}
	}

	return nil
}

func validateTerms(tax, discountPct, discountAmt decimal.Decimal) error {
	if err := money.CheckPercent(tax); err != nil {
		return &ValidationError{Field: "tax_percentage", Reason: err.Error()}
	}

	if err := money.CheckPercent(discountPct); err != nil {
		return &ValidationError{Field: "discount_percentage", Reason: err.Error()}
	}

	if err := money.CheckAmount(discountAmt); err != nil {
		return &ValidationError{Field: "discount_amount", Reason: err.Error()}
	}

	return nil
}

func toItems(params []ItemParams) []Item {
	items := make([]Item, len(params))
	for i, p := range params {
		items[i] = Item{
			Description:        strings.TrimSpace(p.Description),
			Quantity:           p.Quantity,
			UnitPrice:          p.UnitPrice,
			DiscountPercentage: p.DiscountPercentage,
			DiscountAmount:     p.DiscountAmount,
			ProductID:          p.ProductID,
		}
	}

	return items
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Invoice, error) {
	if params.CustomerID == uuid.Nil {
		return nil, &ValidationError{Field: "customer_id", Reason: "is required"}
	}

	tax := s.defaultTax
	if params.TaxPercentage != nil {
		tax = *params.TaxPercentage
	}

	if err := validateTerms(tax, params.DiscountPercentage, params.DiscountAmount); err != nil {
		return nil, err
	}

	if err := validateItems(params.Items); err != nil {
		return nil, err
	}

	issue := s.today()
	if !params.IssueDate.IsZero() {
		issue = DateOnly(params.IssueDate)
	}

	due := issue.AddDate(0, 0, s.dueDays)
	if !params.DueDate.IsZero() {
		due = DateOnly(params.DueDate)
	}

	if due.Before(issue) {
		return nil, &ValidationError{Field: "due_date", Reason: "must not be before the issue date"}
	}

	var (
		year int
		seq  int64
	)

	if params.Number != "" {
		var err error

		if year, seq, err = ParseNumber(params.Number); err != nil {
			return nil, err
		}
	}

	var created *Invoice

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inv := &Invoice{
			Number:             params.Number,
			IssueDate:          issue,
			DueDate:            due,
			Status:             StatusDraft,
			PaymentMethod:      params.PaymentMethod,
			TaxPercentage:      tax,
			DiscountPercentage: params.DiscountPercentage,
			DiscountAmount:     params.DiscountAmount,
			PaidAmount:         decimal.Zero,
			CustomerID:         params.CustomerID,
			CreatedBy:          params.CreatedBy,
			Notes:              params.Notes,
			Items:              toItems(params.Items),
		}
		if err := inv.ReplaceItems(inv.Items); err != nil {
			return err
		}

		guard := customer.NewGuard(tx.Customers())

		decision, err := guard.CheckCreditAvailable(ctx, params.CustomerID, inv.Total)
		if err != nil {
			return collaboratorError(err)
		}

		if !decision.Approved {
			return collaboratorError(fmt.Errorf("customer %s, total %s: %w",
				params.CustomerID, money.Format(inv.Total), decision.Reason))
		}

		adjuster := stock.NewAdjuster(tx.Stock())

		products, qty := inv.ProductQuantities()
		for _, id := range products {
			if _, err := adjuster.Check(ctx, id, qty[id]); err != nil {
				return collaboratorError(err)
			}
		}

		if inv.Number == "" {
			next, err := tx.NextNumber(ctx, issue.Year())
			if err != nil {
				return fmt.Errorf("allocating invoice number: %w", err)
			}

			inv.Number = FormatNumber(issue.Year(), next)
		} else {
			exists, err := tx.NumberExists(ctx, inv.Number)
			if err != nil {
				return fmt.Errorf("checking invoice number: %w", err)
			}

			if exists {
				return fmt.Errorf("%w: %s", ErrDuplicateNumber, inv.Number)
			}

			if err := tx.ClaimNumber(ctx, year, seq); err != nil {
				return fmt.Errorf("claiming invoice number: %w", err)
			}
		}

		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("creating invoice: %w", err)
		}

		created = inv

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("invoice created", "invoice_id", created.ID, "number", created.Number,
		"customer_id", created.CustomerID, "total", money.Format(created.Total))

	return created, nil
}

// mutate locks the invoice, hides tombstones and runs fn against it inside one transaction.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Tx, inv *Invoice) error) (*Invoice, error) {
	var out *Invoice

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}

		if inv.DeletedAt != nil {
			return ErrNotFound
		}

		if err := fn(ctx, tx, inv); err != nil {
			return err
		}

		out = inv

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Service) Edit(ctx context.Context, id uuid.UUID, params EditParams) (*Invoice, error) {
	if err := validateItems(params.Items); err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(ctx context.Context, tx Tx, inv *Invoice) error {
		if inv.Status != StatusDraft {
			return &StateError{Op: "edit", From: inv.Status}
		}

		if params.DueDate != nil {
			inv.DueDate = DateOnly(*params.DueDate)
		}

		if params.PaymentMethod != nil {
			inv.PaymentMethod = *params.PaymentMethod
		}

		if params.TaxPercentage != nil {
			inv.TaxPercentage = *params.TaxPercentage
		}

		if params.DiscountPercentage != nil {
			inv.DiscountPercentage = *params.DiscountPercentage
		}

		if params.DiscountAmount != nil {
			inv.DiscountAmount = *params.DiscountAmount
		}

		if params.Notes != nil {
			inv.Notes = *params.Notes
		}

		if err := validateTerms(inv.TaxPercentage, inv.DiscountPercentage, inv.DiscountAmount); err != nil {
			return err
		}

		if inv.DueDate.Before(inv.IssueDate) {
			return &ValidationError{Field: "due_date", Reason: "must not be before the issue date"}
		}

		if err := inv.ReplaceItems(toItems(params.Items)); err != nil {
			return err
		}

		if err := tx.ReplaceItems(ctx, inv); err != nil {
			return fmt.Errorf("replacing items: %w", err)
		}

		return tx.UpdateInvoice(ctx, inv)
	})
}

// Confirm reserves stock for every product line and charges the customer with the total.
// Any failure rolls the whole confirmation back.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.mutate(ctx, id, func(ctx context.Context, tx Tx, inv *Invoice) error {
		if !inv.CanTransition(StatusPending) {
			return &StateError{Op: "confirm", From: inv.Status}
		}

		if len(inv.Items) == 0 {
			return &ValidationError{Field: "items", Reason: "at least one item is required to confirm"}
		}

		adjuster := stock.NewAdjuster(tx.Stock())

		products, qty := inv.ProductQuantities()
		for _, pid := range products {
			if _, err := adjuster.Reserve(ctx, pid, qty[pid]); err != nil {
				return collaboratorError(err)
			}
		}

		if inv.Total.IsPositive() {
			if _, err := customer.NewGuard(tx.Customers()).Charge(ctx, inv.CustomerID, inv.Total); err != nil {
				return collaboratorError(err)
			}
		}

		inv.Status = StatusPending

		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("invoice confirmed", "invoice_id", inv.ID, "number", inv.Number, "total", money.Format(inv.Total))

	return inv, nil
}

// AddPayment records a payment. The invoice row lock makes concurrent payments
// serialize, so each one sees the balance left by the previous.
func (s *Service) AddPayment(ctx context.Context, id uuid.UUID, params PaymentParams) (*Invoice, error) {
	if !params.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	if err := money.CheckAmount(params.Amount); err != nil {
		return nil, &ValidationError{Field: "amount", Reason: err.Error()}
	}

	paidAt := params.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	inv, err := s.mutate(ctx, id, func(ctx context.Context, tx Tx, inv *Invoice) error {
		p, err := inv.ApplyPayment(params.Amount, params.Method, params.Reference, paidAt)
		if err != nil {
			return err
		}

		if err := tx.AddPayment(ctx, p); err != nil {
			return fmt.Errorf("recording payment: %w", err)
		}

		if _, err := customer.NewGuard(tx.Customers()).ApplyPayment(ctx, inv.CustomerID, params.Amount); err != nil {
			return collaboratorError(err)
		}

		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("payment recorded", "invoice_id", inv.ID, "amount", money.Format(params.Amount),
		"balance_due", money.Format(inv.BalanceDue), "status", inv.Status)

	return inv, nil
}

// Cancel releases reserved stock and the unpaid part of the customer charge when the
// invoice had been confirmed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.mutate(ctx, id, func(ctx context.Context, tx Tx, inv *Invoice) error {
		if !inv.CanTransition(StatusCancelled) {
			return &StateError{Op: "cancel", From: inv.Status}
		}

		if inv.Status == StatusPending || inv.Status == StatusPartiallyPaid {
			adjuster := stock.NewAdjuster(tx.Stock())

			products, qty := inv.ProductQuantities()
			for _, pid := range products {
				if _, err := adjuster.Release(ctx, pid, qty[pid]); err != nil {
					return collaboratorError(err)
				}
			}

			if inv.BalanceDue.IsPositive() {
				if _, err := customer.NewGuard(tx.Customers()).ReverseCharge(ctx, inv.CustomerID, inv.BalanceDue); err != nil {
					return collaboratorError(err)
				}
			}
		}

		inv.Status = StatusCancelled

		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("invoice cancelled", "invoice_id", inv.ID, "number", inv.Number)

	return inv, nil
}

// Delete tombstones the invoice. Stock reservations and customer charges are untouched;
// cancel first to undo them.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.mutate(ctx, id, func(ctx context.Context, tx Tx, inv *Invoice) error {
		if inv.Status == StatusPaid {
			return &StateError{Op: "delete", From: inv.Status}
		}

		now := s.now()
		inv.DeletedAt = &now

		return tx.UpdateInvoice(ctx, inv)
	})

	return err
}

func (s *Service) Restore(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var out *Invoice

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}

		if inv.DeletedAt == nil {
			return &StateError{Op: "restore", From: inv.Status}
		}

		exists, err := tx.NumberExists(ctx, inv.Number)
		if err != nil {
			return fmt.Errorf("checking invoice number: %w", err)
		}

		if exists {
			return fmt.Errorf("%w: %s is in use by another invoice", ErrDuplicateNumber, inv.Number)
		}

		inv.DeletedAt = nil

		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}

		out = inv

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	if inv.DeletedAt != nil {
		return nil, ErrNotFound
	}

	return inv, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	return s.repo.GetInvoiceByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
}

func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *filter.Status)}
	}

	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}

	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}

	if filter.Offset < 0 {
		filter.Offset = 0
	}

	filter.AsOf = s.today()

	invoices, total, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	return &ListResult{Invoices: invoices, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Overdue lists every open invoice past its due date.
func (s *Service) Overdue(ctx context.Context) ([]*Invoice, error) {
	status := StatusOverdue

	var out []*Invoice

	for offset := 0; ; offset += MaxListLimit {
		res, err := s.List(ctx, ListFilter{Status: &status, Limit: MaxListLimit, Offset: offset})
		if err != nil {
			return nil, err
		}

		out = append(out, res.Invoices...)

		if len(res.Invoices) < MaxListLimit {
			return out, nil
		}
	}
}

// Now exposes the service clock so callers render derived statuses consistently.
func (s *Service) Now() time.Time {
	return s.now()
}

// RepairCustomerBalance rebuilds a customer's running balance from invoices. It is an
// operator tool; the lifecycle never calls it.
func (s *Service) RepairCustomerBalance(ctx context.Context, customerID uuid.UUID) (*customer.Customer, error) {
	var out *customer.Customer

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := customer.NewGuard(tx.Customers()).RepairBalance(ctx, customerID)
		if err != nil {
			return collaboratorError(err)
		}

		out = c

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
