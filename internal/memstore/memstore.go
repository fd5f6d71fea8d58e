// Package memstore keeps customers, products and invoices in process memory. It backs
// the API when no database is configured and the lifecycle tests.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
)

type state struct {
	customers map[uuid.UUID]*customer.Customer
	products  map[uuid.UUID]*stock.Product
	invoices  map[uuid.UUID]*invoice.Invoice
	sequences map[int]int64
}

func (st *state) clone() *state {
	out := &state{
		customers: make(map[uuid.UUID]*customer.Customer, len(st.customers)),
		products:  make(map[uuid.UUID]*stock.Product, len(st.products)),
		invoices:  make(map[uuid.UUID]*invoice.Invoice, len(st.invoices)),
		sequences: maps.Clone(st.sequences),
	}

	for id, c := range st.customers {
		cp := *c
		out.customers[id] = &cp
	}

	for id, p := range st.products {
		cp := *p
		out.products[id] = &cp
	}

	for id, inv := range st.invoices {
		out.invoices[id] = copyInvoice(inv)
	}

	return out
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	cp.Items = append([]invoice.Item(nil), inv.Items...)
	cp.Payments = append([]invoice.Payment(nil), inv.Payments...)

	return &cp
}

// Store serializes transactions with a single mutex. Each transaction works on a copy of
// the state that replaces the committed one only when the transaction succeeds.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: &state{
			customers: make(map[uuid.UUID]*customer.Customer),
			products:  make(map[uuid.UUID]*stock.Product),
			invoices:  make(map[uuid.UUID]*invoice.Invoice),
			sequences: make(map[int]int64),
		},
		now: time.Now,
	}
}

// PutCustomer inserts or replaces a customer. A nil ID is assigned.
func (s *Store) PutCustomer(c customer.Customer) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	if c.Status == "" {
		c.Status = customer.StatusActive
	}

	s.st.customers[c.ID] = &c

	return c.ID
}

// PutProduct inserts or replaces a product. A nil ID is assigned.
func (s *Store) PutProduct(p stock.Product) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	if p.Status == "" {
		p.Status = stock.StatusActive
	}

	s.st.products[p.ID] = &p

	return p.ID
}

// Products returns the committed stock view, outside any transaction.
func (s *Store) Products() stock.Repository {
	return &stockRepo{s: s}
}

// Customers returns the committed customer view, outside any transaction.
func (s *Store) Customers() customer.Repository {
	return &customerRepo{s: s}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx invoice.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &txStore{st: work, now: s.now}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.st = work

	return nil
}

func (s *Store) GetInvoice(_ context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.st.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}

	return copyInvoice(inv), nil
}

func (s *Store) GetInvoiceByNumber(_ context.Context, number string) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.st.invoices {
		if inv.Number == number && inv.DeletedAt == nil {
			return copyInvoice(inv), nil
		}
	}

	return nil, invoice.ErrNotFound
}

func (s *Store) ListInvoices(_ context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*invoice.Invoice

	for _, inv := range s.st.invoices {
		if matches(inv, filter) {
			matched = append(matched, inv)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].IssueDate.Equal(matched[j].IssueDate) {
			return matched[i].IssueDate.After(matched[j].IssueDate)
		}

		return matched[i].Number > matched[j].Number
	})

	total := len(matched)

	start := min(filter.Offset, total)
	end := total

	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}

	out := make([]*invoice.Invoice, 0, end-start)
	for _, inv := range matched[start:end] {
		cp := copyInvoice(inv)
		cp.Items, cp.Payments = nil, nil
		out = append(out, cp)
	}

	return out, total, nil
}

func matches(inv *invoice.Invoice, f invoice.ListFilter) bool {
	if !f.IncludeDeleted && inv.DeletedAt != nil {
		return false
	}

	if f.Status != nil {
		if *f.Status == invoice.StatusOverdue {
			if !inv.IsOverdue(f.AsOf) {
				return false
			}
		} else if inv.Status != *f.Status {
			return false
		}
	}

	if f.CustomerID != nil && inv.CustomerID != *f.CustomerID {
		return false
	}

	if f.StartDate != nil && inv.IssueDate.Before(*f.StartDate) {
		return false
	}

	if f.EndDate != nil && inv.IssueDate.After(*f.EndDate) {
		return false
	}

	if f.Search != "" && !strings.Contains(strings.ToLower(inv.Number), strings.ToLower(f.Search)) {
		return false
	}

	return true
}

type txStore struct {
	st  *state
	now func() time.Time
}

func (t *txStore) Stock() stock.Repository {
	return &stockRepo{st: t.st, now: t.now}
}

func (t *txStore) Customers() customer.Repository {
	return &customerRepo{st: t.st, now: t.now}
}

func (t *txStore) LockInvoice(_ context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	inv, ok := t.st.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}

	return copyInvoice(inv), nil
}

func (t *txStore) NextNumber(_ context.Context, year int) (int64, error) {
	t.st.sequences[year]++

	return t.st.sequences[year], nil
}

func (t *txStore) ClaimNumber(_ context.Context, year int, seq int64) error {
	t.st.sequences[year] = max(t.st.sequences[year], seq)

	return nil
}

func (t *txStore) NumberExists(_ context.Context, number string) (bool, error) {
	for _, inv := range t.st.invoices {
		if inv.Number == number && inv.DeletedAt == nil {
			return true, nil
		}
	}

	return false, nil
}

func (t *txStore) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if exists, _ := t.NumberExists(ctx, inv.Number); exists {
		return invoice.ErrDuplicateNumber
	}

	inv.ID = uuid.New()
	inv.Version = 1
	inv.CreatedAt = t.now()

	for i := range inv.Items {
		inv.Items[i].ID = uuid.New()
	}

	t.st.invoices[inv.ID] = copyInvoice(inv)

	return nil
}

func (t *txStore) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	cur, ok := t.st.invoices[inv.ID]
	if !ok {
		return invoice.ErrNotFound
	}

	if inv.DeletedAt == nil && cur.DeletedAt != nil {
		for _, other := range t.st.invoices {
			if other.ID != inv.ID && other.Number == inv.Number && other.DeletedAt == nil {
				return invoice.ErrDuplicateNumber
			}
		}
	}

	now := t.now()
	inv.Version = cur.Version + 1
	inv.UpdatedAt = &now

	next := copyInvoice(inv)
	next.Items = cur.Items
	next.Payments = cur.Payments
	t.st.invoices[inv.ID] = next

	return nil
}

func (t *txStore) ReplaceItems(_ context.Context, inv *invoice.Invoice) error {
	cur, ok := t.st.invoices[inv.ID]
	if !ok {
		return invoice.ErrNotFound
	}

	for i := range inv.Items {
		inv.Items[i].ID = uuid.New()
	}

	cur.Items = append([]invoice.Item(nil), inv.Items...)

	return nil
}

func (t *txStore) AddPayment(_ context.Context, p *invoice.Payment) error {
	cur, ok := t.st.invoices[p.InvoiceID]
	if !ok {
		return invoice.ErrNotFound
	}

	p.ID = uuid.New()
	cur.Payments = append(cur.Payments, *p)

	return nil
}

// stockRepo and customerRepo either run inside a transaction (st set) or take the
// store lock for a single statement (s set).
type stockRepo struct {
	s   *Store
	st  *state
	now func() time.Time
}

func (r *stockRepo) with(fn func(st *state, now time.Time) (*stock.Product, error)) (*stock.Product, error) {
	if r.s != nil {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()

		return fn(r.s.st, r.s.now())
	}

	return fn(r.st, r.now())
}

func (r *stockRepo) GetProduct(_ context.Context, id uuid.UUID) (*stock.Product, error) {
	return r.with(func(st *state, _ time.Time) (*stock.Product, error) {
		p, ok := st.products[id]
		if !ok {
			return nil, stock.ErrProductNotFound
		}

		cp := *p

		return &cp, nil
	})
}

func (r *stockRepo) Reserve(_ context.Context, id uuid.UUID, qty decimal.Decimal) (*stock.Product, error) {
	return r.with(func(st *state, now time.Time) (*stock.Product, error) {
		p, ok := st.products[id]
		if !ok {
			return nil, stock.ErrProductNotFound
		}

		if p.Status != stock.StatusActive || p.Stock.LessThan(qty) {
			return nil, stock.ErrInsufficientStock
		}

		p.Stock = p.Stock.Sub(qty)
		if p.Stock.IsZero() {
			p.Status = stock.StatusOutOfStock
		}

		p.UpdatedAt = &now
		cp := *p

		return &cp, nil
	})
}

func (r *stockRepo) Release(_ context.Context, id uuid.UUID, qty decimal.Decimal) (*stock.Product, error) {
	return r.with(func(st *state, now time.Time) (*stock.Product, error) {
		p, ok := st.products[id]
		if !ok {
			return nil, stock.ErrProductNotFound
		}

		p.Stock = p.Stock.Add(qty)
		if p.Status == stock.StatusOutOfStock && p.Stock.IsPositive() {
			p.Status = stock.StatusActive
		}

		p.UpdatedAt = &now
		cp := *p

		return &cp, nil
	})
}

type customerRepo struct {
	s   *Store
	st  *state
	now func() time.Time
}

func (r *customerRepo) with(fn func(st *state, now time.Time) (*customer.Customer, error)) (*customer.Customer, error) {
	if r.s != nil {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()

		return fn(r.s.st, r.s.now())
	}

	return fn(r.st, r.now())
}

func (r *customerRepo) GetCustomer(_ context.Context, id uuid.UUID) (*customer.Customer, error) {
	return r.with(func(st *state, _ time.Time) (*customer.Customer, error) {
		c, ok := st.customers[id]
		if !ok {
			return nil, customer.ErrNotFound
		}

		cp := *c

		return &cp, nil
	})
}

func (r *customerRepo) Charge(_ context.Context, id uuid.UUID, amount decimal.Decimal) (*customer.Customer, error) {
	return r.with(func(st *state, now time.Time) (*customer.Customer, error) {
		c, ok := st.customers[id]
		if !ok {
			return nil, customer.ErrNotFound
		}

		if c.Status != customer.StatusActive {
			return nil, customer.ErrInactive
		}

		next := c.CurrentBalance.Add(amount)
		if c.HasCreditLimit() && next.GreaterThan(c.CreditLimit) {
			return nil, customer.ErrCreditLimitExceeded
		}

		c.CurrentBalance = next
		c.UpdatedAt = &now
		cp := *c

		return &cp, nil
	})
}

func (r *customerRepo) decrement(id uuid.UUID, amount decimal.Decimal) (*customer.Customer, error) {
	return r.with(func(st *state, now time.Time) (*customer.Customer, error) {
		c, ok := st.customers[id]
		if !ok {
			return nil, customer.ErrNotFound
		}

		c.CurrentBalance = decimal.Max(c.CurrentBalance.Sub(amount), decimal.Zero)
		c.UpdatedAt = &now
		cp := *c

		return &cp, nil
	})
}

func (r *customerRepo) ApplyPayment(_ context.Context, id uuid.UUID, amount decimal.Decimal) (*customer.Customer, error) {
	return r.decrement(id, amount)
}

func (r *customerRepo) Refund(_ context.Context, id uuid.UUID, amount decimal.Decimal) (*customer.Customer, error) {
	return r.decrement(id, amount)
}

func (r *customerRepo) RecomputeBalance(_ context.Context, id uuid.UUID) (*customer.Customer, error) {
	return r.with(func(st *state, now time.Time) (*customer.Customer, error) {
		c, ok := st.customers[id]
		if !ok {
			return nil, customer.ErrNotFound
		}

		sum := decimal.Zero

		for _, inv := range st.invoices {
			if inv.CustomerID == id && (inv.Status == invoice.StatusPending || inv.Status == invoice.StatusPartiallyPaid) {
				sum = sum.Add(inv.BalanceDue)
			}
		}

		c.CurrentBalance = sum
		c.UpdatedAt = &now
		cp := *c

		return &cp, nil
	})
}
