package invoice_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/memstore"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
)

var _ invoice.Repository = (*memstore.Store)(nil)

type fixture struct {
	store    *memstore.Store
	svc      *invoice.Service
	customer uuid.UUID
}

func newFixture(t *testing.T, creditLimit string) *fixture {
	t.Helper()

	st := memstore.New()
	id := st.PutCustomer(customer.Customer{Name: "Acme", CreditLimit: d(creditLimit), CurrentBalance: d("0")})

	return &fixture{
		store:    st,
		svc:      invoice.NewService(st, invoice.WithClock(func() time.Time { return fixedNow })),
		customer: id,
	}
}

func (f *fixture) product(t *testing.T, qty string) uuid.UUID {
	t.Helper()

	return f.store.PutProduct(stock.Product{SKU: uuid.NewString()[:8], Name: "Widget", Stock: d(qty)})
}

func (f *fixture) stockOf(t *testing.T, id uuid.UUID) *stock.Product {
	t.Helper()

	p, err := f.store.Products().GetProduct(context.Background(), id)
	require.NoError(t, err)

	return p
}

func (f *fixture) balance(t *testing.T) string {
	t.Helper()

	c, err := f.store.Customers().GetCustomer(context.Background(), f.customer)
	require.NoError(t, err)

	return c.CurrentBalance.StringFixed(2)
}

func (f *fixture) create(t *testing.T, tax string, items ...invoice.ItemParams) *invoice.Invoice {
	t.Helper()

	inv, err := f.svc.Create(context.Background(), invoice.CreateParams{
		CustomerID:    f.customer,
		TaxPercentage: new(d(tax)),
		Items:         items,
	})
	require.NoError(t, err)

	return inv
}

func assertBalanceInvariant(t *testing.T, inv *invoice.Invoice) {
	t.Helper()
	assert.True(t, inv.BalanceDue.Equal(inv.Total.Sub(inv.PaidAmount)), "balance due must equal total - paid")
	assert.True(t, inv.PaidAmount.LessThanOrEqual(inv.Total), "paid must not exceed total")
}

func TestLifecycle_PaymentScenario(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	inv := f.create(t, "19", invoice.ItemParams{Description: "Widget", Quantity: d("2"), UnitPrice: d("100.00")})
	assert.Equal(t, "INV-2026-000001", inv.Number)
	assertMoney(t, "200.00", inv.Subtotal, "subtotal")
	assertMoney(t, "38.00", inv.TaxAmount, "tax")
	assertMoney(t, "238.00", inv.Total, "total")

	inv, err := f.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, inv.Status)
	assert.Equal(t, "238.00", f.balance(t))

	inv, err = f.svc.AddPayment(ctx, inv.ID, invoice.PaymentParams{Amount: d("100.00"), Method: "transfer"})
	require.NoError(t, err)
	assertMoney(t, "100.00", inv.PaidAmount, "paid")
	assertMoney(t, "138.00", inv.BalanceDue, "balance due")
	assert.Equal(t, invoice.StatusPartiallyPaid, inv.Status)
	assertBalanceInvariant(t, inv)
	assert.Equal(t, "138.00", f.balance(t))

	inv, err = f.svc.AddPayment(ctx, inv.ID, invoice.PaymentParams{Amount: d("138.00"), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	assertMoney(t, "0.00", inv.BalanceDue, "balance due")
	assertBalanceInvariant(t, inv)
	assert.Equal(t, "0.00", f.balance(t))

	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Payments, 2)

	_, err = f.svc.Cancel(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrInvalidState)

	assert.ErrorIs(t, f.svc.Delete(ctx, inv.ID), invoice.ErrInvalidState)
}

func TestLifecycle_StockDrainAndRestore(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	pid := f.product(t, "5")

	inv := f.create(t, "0", invoice.ItemParams{Description: "Widget", Quantity: d("5"), UnitPrice: d("10"), ProductID: &pid})
	assert.Equal(t, "5.00", f.stockOf(t, pid).Stock.StringFixed(2), "create must not reserve")

	_, err := f.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	p := f.stockOf(t, pid)
	assert.True(t, p.Stock.IsZero())
	assert.Equal(t, stock.StatusOutOfStock, p.Status)

	_, err = f.svc.Cancel(ctx, inv.ID)
	require.NoError(t, err)

	p = f.stockOf(t, pid)
	assert.Equal(t, "5.00", p.Stock.StringFixed(2))
	assert.Equal(t, stock.StatusActive, p.Status)
	assert.Equal(t, "0.00", f.balance(t))
}

func TestLifecycle_CancelRestoresReservedUnits(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	pid := f.product(t, "10")

	inv := f.create(t, "19", invoice.ItemParams{Description: "Widget", Quantity: d("3"), UnitPrice: d("20"), ProductID: &pid})

	_, err := f.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.00", f.stockOf(t, pid).Stock.StringFixed(2))

	_, err = f.svc.AddPayment(ctx, inv.ID, invoice.PaymentParams{Amount: d("20")})
	require.NoError(t, err)

	got, err := f.svc.Cancel(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCancelled, got.Status)
	assert.Equal(t, "10.00", f.stockOf(t, pid).Stock.StringFixed(2))
	assert.Equal(t, "0.00", f.balance(t))
}

func TestLifecycle_ConfirmIsAllOrNothing(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	plenty := f.product(t, "10")
	scarce := f.product(t, "2")

	inv := f.create(t, "0",
		invoice.ItemParams{Description: "A", Quantity: d("4"), UnitPrice: d("1"), ProductID: &plenty},
		invoice.ItemParams{Description: "B", Quantity: d("2"), UnitPrice: d("1"), ProductID: &scarce},
	)

	// Someone else takes the scarce stock between create and confirm.
	_, err := f.store.Products().Reserve(ctx, scarce, d("1"))
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrInsufficientStock)

	assert.Equal(t, "10.00", f.stockOf(t, plenty).Stock.StringFixed(2))
	assert.Equal(t, "0.00", f.balance(t))

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, got.Status)
}

func TestLifecycle_CreditLimit(t *testing.T) {
	f := newFixture(t, "300")
	ctx := context.Background()

	first := f.create(t, "0", invoice.ItemParams{Description: "A", Quantity: d("1"), UnitPrice: d("200")})
	second := f.create(t, "0", invoice.ItemParams{Description: "B", Quantity: d("1"), UnitPrice: d("150")})

	_, err := f.svc.Confirm(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", f.balance(t))

	_, err = f.svc.Confirm(ctx, second.ID)
	assert.ErrorIs(t, err, invoice.ErrCreditLimitExceeded)
	assert.Equal(t, "200.00", f.balance(t))

	_, err = f.svc.Create(ctx, invoice.CreateParams{
		CustomerID: f.customer,
		Items:      []invoice.ItemParams{{Description: "C", Quantity: d("1"), UnitPrice: d("100.01")}},
	})
	assert.ErrorIs(t, err, invoice.ErrCreditLimitExceeded)
	assert.Equal(t, "200.00", f.balance(t))
}

func TestLifecycle_ConcurrentConfirmLastUnit(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	pid := f.product(t, "1")

	a := f.create(t, "0", invoice.ItemParams{Description: "A", Quantity: d("1"), UnitPrice: d("5"), ProductID: &pid})
	b := f.create(t, "0", invoice.ItemParams{Description: "B", Quantity: d("1"), UnitPrice: d("5"), ProductID: &pid})

	errs := make([]error, 2)

	var wg sync.WaitGroup

	for i, id := range []uuid.UUID{a.ID, b.ID} {
		wg.Go(func() {
			_, errs[i] = f.svc.Confirm(ctx, id)
		})
	}

	wg.Wait()

	var ok, short int

	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, invoice.ErrInsufficientStock):
			short++
		}
	}

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.True(t, f.stockOf(t, pid).Stock.IsZero())
}

func TestLifecycle_ConcurrentPaymentsNoLostUpdate(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	inv := f.create(t, "0", invoice.ItemParams{Description: "Service", Quantity: d("1"), UnitPrice: d("100")})

	_, err := f.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	const payments = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)

	// 10 payments of 15 against a balance of 100: exactly 6 fit.
	for range payments {
		wg.Go(func() {
			_, err := f.svc.AddPayment(ctx, inv.ID, invoice.PaymentParams{Amount: d("15")})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()

				return
			}

			assert.ErrorIs(t, err, invoice.ErrPaymentExceedsBalance)
		})
	}

	wg.Wait()

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, 6, accepted)
	assert.Len(t, got.Payments, 6)
	assertMoney(t, "90.00", got.PaidAmount, "paid")
	assertMoney(t, "10.00", got.BalanceDue, "balance due")
	assertBalanceInvariant(t, got)
	assert.Equal(t, "10.00", f.balance(t))
}

func TestLifecycle_DeleteRestore(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	inv := f.create(t, "0", invoice.ItemParams{Description: "A", Quantity: d("1"), UnitPrice: d("1")})

	require.NoError(t, f.svc.Delete(ctx, inv.ID))

	_, err := f.svc.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	_, err = f.svc.GetByNumber(ctx, inv.Number)
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	_, err = f.svc.Confirm(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	res, err := f.svc.List(ctx, invoice.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	res, err = f.svc.List(ctx, invoice.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	// The number is free again while tombstoned.
	dup, err := f.svc.Create(ctx, invoice.CreateParams{
		CustomerID: f.customer,
		Number:     inv.Number,
		Items:      []invoice.ItemParams{{Description: "B", Quantity: d("1"), UnitPrice: d("1")}},
	})
	require.NoError(t, err)

	_, err = f.svc.Restore(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrDuplicateNumber)

	require.NoError(t, f.svc.Delete(ctx, dup.ID))

	restored, err := f.svc.Restore(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)

	next := f.create(t, "0", invoice.ItemParams{Description: "C", Quantity: d("1"), UnitPrice: d("1")})
	assert.Equal(t, "INV-2026-000002", next.Number)
}

func TestLifecycle_ListOverdue(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	past := fixedNow.AddDate(0, -2, 0)

	overdue, err := f.svc.Create(ctx, invoice.CreateParams{
		CustomerID: f.customer,
		IssueDate:  past,
		DueDate:    past.AddDate(0, 0, 10),
		Items:      []invoice.ItemParams{{Description: "Late", Quantity: d("1"), UnitPrice: d("10")}},
	})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, overdue.ID)
	require.NoError(t, err)

	onTime := f.create(t, "0", invoice.ItemParams{Description: "Fresh", Quantity: d("1"), UnitPrice: d("10")})
	_, err = f.svc.Confirm(ctx, onTime.ID)
	require.NoError(t, err)

	draftPast, err := f.svc.Create(ctx, invoice.CreateParams{
		CustomerID: f.customer,
		IssueDate:  past,
		DueDate:    past,
		Items:      []invoice.ItemParams{{Description: "Draft", Quantity: d("1"), UnitPrice: d("10")}},
	})
	require.NoError(t, err)

	got, err := f.svc.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
	assert.Equal(t, invoice.StatusOverdue, got[0].EffectiveStatus(fixedNow))
	assert.NotEqual(t, draftPast.ID, got[0].ID)

	pending := invoice.StatusPending
	res, err := f.svc.List(ctx, invoice.ListFilter{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	res, err = f.svc.List(ctx, invoice.ListFilter{Search: "000002"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, onTime.ID, res.Invoices[0].ID)
}

func TestLifecycle_RepairCustomerBalance(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	inv := f.create(t, "19", invoice.ItemParams{Description: "Widget", Quantity: d("2"), UnitPrice: d("100")})
	_, err := f.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	// Simulate drift.
	f.store.PutCustomer(customer.Customer{ID: f.customer, Name: "Acme", CurrentBalance: d("5")})

	c, err := f.svc.RepairCustomerBalance(ctx, f.customer)
	require.NoError(t, err)
	assert.Equal(t, "238.00", c.CurrentBalance.StringFixed(2))

	_, err = f.svc.RepairCustomerBalance(ctx, uuid.New())
	assert.ErrorIs(t, err, invoice.ErrCustomerNotFound)
}
