package invoice_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
)

var fixedNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

type mocks struct {
	repo      *invoice.MockRepository
	tx        *invoice.MockTx
	stock     *stock.MockRepository
	customers *customer.MockRepository
}

func newMocks(t *testing.T) (*mocks, *invoice.Service) {
	t.Helper()

	ctrl := gomock.NewController(t)

	m := &mocks{
		repo:      invoice.NewMockRepository(ctrl),
		tx:        invoice.NewMockTx(ctrl),
		stock:     stock.NewMockRepository(ctrl),
		customers: customer.NewMockRepository(ctrl),
	}

	m.tx.EXPECT().Stock().Return(m.stock).AnyTimes()
	m.tx.EXPECT().Customers().Return(m.customers).AnyTimes()

	svc := invoice.NewService(m.repo, invoice.WithClock(func() time.Time { return fixedNow }))

	return m, svc
}

type decimalMatcher struct {
	want decimal.Decimal
}

func (m decimalMatcher) Matches(x any) bool {
	v, ok := x.(decimal.Decimal)
	return ok && v.Equal(m.want)
}

func (m decimalMatcher) String() string {
	return "is decimal " + m.want.String()
}

func dm(s string) gomock.Matcher {
	return decimalMatcher{want: d(s)}
}

// runTx makes WithTx call straight into the mocked transaction.
func (m *mocks) runTx() {
	m.repo.EXPECT().
		WithTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, invoice.Tx) error) error {
			return fn(ctx, m.tx)
		})
}

func activeCustomer(id uuid.UUID, limit, balance string) *customer.Customer {
	return &customer.Customer{ID: id, Status: customer.StatusActive, CreditLimit: d(limit), CurrentBalance: d(balance)}
}

func TestService_Create(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()

	baseParams := func() invoice.CreateParams {
		return invoice.CreateParams{
			CustomerID:    customerID,
			TaxPercentage: new(d("19")),
			Items: []invoice.ItemParams{
				{Description: "Widget", Quantity: d("2"), UnitPrice: d("100"), ProductID: &productID},
			},
		}
	}

	type testCase struct {
		name      string
		params    func() invoice.CreateParams
		setupMock func(m *mocks)
		wantErr   error
	}

	tests := []testCase{
		{
			name:   "Success",
			params: baseParams,
			setupMock: func(m *mocks) {
				m.runTx()
				m.customers.EXPECT().GetCustomer(gomock.Any(), customerID).Return(activeCustomer(customerID, "0", "0"), nil)
				m.stock.EXPECT().GetProduct(gomock.Any(), productID).
					Return(&stock.Product{ID: productID, Stock: d("5"), Status: stock.StatusActive}, nil)
				m.tx.EXPECT().NextNumber(gomock.Any(), 2026).Return(int64(7), nil)
				m.tx.EXPECT().CreateInvoice(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, inv *invoice.Invoice) error {
						inv.ID = uuid.New()
						return nil
					})
			},
		},
		{
			name: "SuppliedNumber",
			params: func() invoice.CreateParams {
				p := baseParams()
				p.Number = "INV-2026-000100"

				return p
			},
			setupMock: func(m *mocks) {
				m.runTx()
				m.customers.EXPECT().GetCustomer(gomock.Any(), customerID).Return(activeCustomer(customerID, "0", "0"), nil)
				m.stock.EXPECT().GetProduct(gomock.Any(), productID).
					Return(&stock.Product{ID: productID, Stock: d("5"), Status: stock.StatusActive}, nil)
				m.tx.EXPECT().NumberExists(gomock.Any(), "INV-2026-000100").Return(false, nil)
				m.tx.EXPECT().ClaimNumber(gomock.Any(), 2026, int64(100)).Return(nil)
				m.tx.EXPECT().CreateInvoice(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name: "DuplicateNumber",
			params: func() invoice.CreateParams {
				p := baseParams()
				p.Number = "INV-2026-000100"

				return p
			},
			setupMock: func(m *mocks) {
				m.runTx()
				m.customers.EXPECT().GetCustomer(gomock.Any(), customerID).Return(activeCustomer(customerID, "0", "0"), nil)
				m.stock.EXPECT().GetProduct(gomock.Any(), productID).
					Return(&stock.Product{ID: productID, Stock: d("5"), Status: stock.StatusActive}, nil)
				m.tx.EXPECT().NumberExists(gomock.Any(), "INV-2026-000100").Return(true, nil)
			},
			wantErr: invoice.ErrDuplicateNumber,
		},
		{
			name:   "CustomerNotFound",
			params: baseParams,
			setupMock: func(m *mocks) {
				m.runTx()
				m.customers.EXPECT().GetCustomer(gomock.Any(), customerID).Return(nil, customer.ErrNotFound)
			},
			wantErr: invoice.ErrCustomerNotFound,
		},
		{
			name:   "CustomerInactive",
			params: baseParams,
			setupMock: func(m *mocks) {
				m.runTx()
				m.customers.EXPECT().GetCustomer(gomock.Any(), customerID).
					Return(&customer.Customer{ID: customerID, Status: customer.StatusInactive}, nil)
			},
			wantErr: invoice.ErrCustomerInactive,
		},
		{
			name:   "CreditLimitExceeded",
			params: baseParams,
			setupMock: func(m *mocks) {
				m.runTx()
				m.customers.EXPECT().GetCustomer(gomock.Any(), customerID).Return(activeCustomer(customerID, "300", "100"), nil)
			},
			wantErr: invoice.ErrCreditLimitExceeded,
		},
		{
			name:   "ProductNotFound",
			params: baseParams,
			setupMock: func(m *mocks) {
				m.runTx()
				m.customers.EXPECT().GetCustomer(gomock.Any(), customerID).Return(activeCustomer(customerID, "0", "0"), nil)
				m.stock.EXPECT().GetProduct(gomock.Any(), productID).Return(nil, stock.ErrProductNotFound)
			},
			wantErr: invoice.ErrProductNotFound,
		},
		{
			name:   "InsufficientStock",
			params: baseParams,
			setupMock: func(m *mocks) {
				m.runTx()
				m.customers.EXPECT().GetCustomer(gomock.Any(), customerID).Return(activeCustomer(customerID, "0", "0"), nil)
				m.stock.EXPECT().GetProduct(gomock.Any(), productID).
					Return(&stock.Product{ID: productID, Stock: d("1"), Status: stock.StatusActive}, nil)
			},
			wantErr: invoice.ErrInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, svc := newMocks(t)
			if tt.setupMock != nil {
				tt.setupMock(m)
			}

			got, err := svc.Create(context.Background(), tt.params())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, invoice.StatusDraft, got.Status)
			assert.Regexp(t, `^INV-2026-\d{6}$`, got.Number)
			assertMoney(t, "238.00", got.Total, "total")
			assert.Equal(t, fixedNow.AddDate(0, 0, 30).Format(time.DateOnly), got.DueDate.Format(time.DateOnly))
		})
	}
}

func TestService_Create_Validation(t *testing.T) {
	customerID := uuid.New()
	issue := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		params invoice.CreateParams
		field  string
	}{
		{
			name:   "MissingCustomer",
			params: invoice.CreateParams{},
			field:  "customer_id",
		},
		{
			name: "NegativeQuantity",
			params: invoice.CreateParams{CustomerID: customerID, Items: []invoice.ItemParams{
				{Description: "X", Quantity: d("-1"), UnitPrice: d("1")},
			}},
			field: "items[0].quantity",
		},
		{
			name: "EmptyDescription",
			params: invoice.CreateParams{CustomerID: customerID, Items: []invoice.ItemParams{
				{Description: "  ", Quantity: d("1"), UnitPrice: d("1")},
			}},
			field: "items[0].description",
		},
		{
			name: "ZeroUnitPrice",
			params: invoice.CreateParams{CustomerID: customerID, Items: []invoice.ItemParams{
				{Description: "X", Quantity: d("1"), UnitPrice: d("0")},
			}},
			field: "items[0].unit_price",
		},
		{
			name: "NegativeUnitPrice",
			params: invoice.CreateParams{CustomerID: customerID, Items: []invoice.ItemParams{
				{Description: "X", Quantity: d("1"), UnitPrice: d("-5")},
			}},
			field: "items[0].unit_price",
		},
		{
			name: "PriceTooPrecise",
			params: invoice.CreateParams{CustomerID: customerID, Items: []invoice.ItemParams{
				{Description: "X", Quantity: d("1"), UnitPrice: d("1.005")},
			}},
			field: "items[0].unit_price",
		},
		{
			name:   "TaxOutOfRange",
			params: invoice.CreateParams{CustomerID: customerID, TaxPercentage: new(d("101"))},
			field:  "tax_percentage",
		},
		{
			name:   "DueBeforeIssue",
			params: invoice.CreateParams{CustomerID: customerID, IssueDate: issue, DueDate: issue.AddDate(0, 0, -1)},
			field:  "due_date",
		},
		{
			name:   "MalformedNumber",
			params: invoice.CreateParams{CustomerID: customerID, Number: "2026-1"},
			field:  "number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, svc := newMocks(t)

			_, err := svc.Create(context.Background(), tt.params)
			require.ErrorIs(t, err, invoice.ErrValidation)

			var verr *invoice.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func draftInvoice(customerID uuid.UUID, items ...invoice.Item) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:            uuid.New(),
		Number:        "INV-2026-000001",
		Status:        invoice.StatusDraft,
		CustomerID:    customerID,
		TaxPercentage: d("19"),
		DueDate:       fixedNow.AddDate(0, 0, 30),
	}
	_ = inv.ReplaceItems(items)

	return inv
}

func TestService_Confirm(t *testing.T) {
	customerID := uuid.New()
	// Reservations follow product id order, not item order.
	p1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	p2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	items := []invoice.Item{
		{Description: "B", Quantity: d("1"), UnitPrice: d("100"), ProductID: &p2},
		{Description: "A", Quantity: d("2"), UnitPrice: d("50"), ProductID: &p1},
	}

	t.Run("Success", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, items...)

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)
		gomock.InOrder(
			m.stock.EXPECT().Reserve(gomock.Any(), p1, dm("2")).Return(&stock.Product{ID: p1, Stock: d("3")}, nil),
			m.stock.EXPECT().Reserve(gomock.Any(), p2, dm("1")).Return(&stock.Product{ID: p2, Stock: d("0")}, nil),
			m.customers.EXPECT().Charge(gomock.Any(), customerID, dm("238")).Return(activeCustomer(customerID, "0", "238"), nil),
			m.tx.EXPECT().UpdateInvoice(gomock.Any(), gomock.Any()).Return(nil),
		)

		got, err := svc.Confirm(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPending, got.Status)
	})

	t.Run("SecondReservationFails", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, items...)

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)
		m.stock.EXPECT().Reserve(gomock.Any(), p1, dm("2")).Return(&stock.Product{ID: p1, Stock: d("3")}, nil)
		m.stock.EXPECT().Reserve(gomock.Any(), p2, dm("1")).Return(nil, stock.ErrInsufficientStock)

		_, err := svc.Confirm(context.Background(), inv.ID)
		assert.ErrorIs(t, err, invoice.ErrInsufficientStock)
	})

	t.Run("CreditLimitExceeded", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, items...)

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)
		m.stock.EXPECT().Reserve(gomock.Any(), gomock.Any(), gomock.Any()).Return(&stock.Product{}, nil).Times(2)
		m.customers.EXPECT().Charge(gomock.Any(), customerID, dm("238")).Return(nil, customer.ErrCreditLimitExceeded)

		_, err := svc.Confirm(context.Background(), inv.ID)
		assert.ErrorIs(t, err, invoice.ErrCreditLimitExceeded)
	})

	t.Run("NotDraft", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, items...)
		inv.Status = invoice.StatusPending

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)

		_, err := svc.Confirm(context.Background(), inv.ID)
		assert.ErrorIs(t, err, invoice.ErrInvalidState)
	})

	t.Run("NoItems", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID)

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)

		_, err := svc.Confirm(context.Background(), inv.ID)
		assert.ErrorIs(t, err, invoice.ErrValidation)
	})

	t.Run("Deleted", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, items...)
		inv.DeletedAt = &fixedNow

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)

		_, err := svc.Confirm(context.Background(), inv.ID)
		assert.ErrorIs(t, err, invoice.ErrNotFound)
	})
}

func TestService_AddPayment(t *testing.T) {
	customerID := uuid.New()

	pending := func() *invoice.Invoice {
		inv := draftInvoice(customerID, invoice.Item{Description: "A", Quantity: d("2"), UnitPrice: d("100")})
		inv.Status = invoice.StatusPending

		return inv
	}

	t.Run("Partial", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := pending()

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)
		m.tx.EXPECT().AddPayment(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, p *invoice.Payment) error {
				assert.Equal(t, inv.ID, p.InvoiceID)
				assert.Equal(t, fixedNow, p.PaidAt)

				return nil
			})
		m.customers.EXPECT().ApplyPayment(gomock.Any(), customerID, dm("100")).Return(activeCustomer(customerID, "0", "138"), nil)
		m.tx.EXPECT().UpdateInvoice(gomock.Any(), gomock.Any()).Return(nil)

		got, err := svc.AddPayment(context.Background(), inv.ID, invoice.PaymentParams{Amount: d("100"), Method: "transfer"})
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPartiallyPaid, got.Status)
		assertMoney(t, "138.00", got.BalanceDue, "balance due")
	})

	t.Run("ExceedsBalance", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := pending()

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)

		_, err := svc.AddPayment(context.Background(), inv.ID, invoice.PaymentParams{Amount: d("238.01")})
		assert.ErrorIs(t, err, invoice.ErrPaymentExceedsBalance)
	})

	t.Run("Cancelled", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := pending()
		inv.Status = invoice.StatusCancelled

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)

		_, err := svc.AddPayment(context.Background(), inv.ID, invoice.PaymentParams{Amount: d("1")})
		assert.ErrorIs(t, err, invoice.ErrInvalidState)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		_, svc := newMocks(t)

		_, err := svc.AddPayment(context.Background(), uuid.New(), invoice.PaymentParams{Amount: decimal.Zero})
		assert.ErrorIs(t, err, invoice.ErrValidation)
	})
}

func TestService_Cancel(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()

	item := invoice.Item{Description: "A", Quantity: d("3"), UnitPrice: d("10"), ProductID: &productID}

	t.Run("Draft", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, item)

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)
		m.tx.EXPECT().UpdateInvoice(gomock.Any(), gomock.Any()).Return(nil)

		got, err := svc.Cancel(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusCancelled, got.Status)
	})

	t.Run("PartiallyPaid", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, item)
		inv.Status = invoice.StatusPending
		_, err := inv.ApplyPayment(d("10"), "cash", "", fixedNow)
		require.NoError(t, err)

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)
		m.stock.EXPECT().Release(gomock.Any(), productID, dm("3")).Return(&stock.Product{ID: productID}, nil)
		m.customers.EXPECT().Refund(gomock.Any(), customerID, decimalMatcher{want: inv.BalanceDue}).Return(activeCustomer(customerID, "0", "0"), nil)
		m.tx.EXPECT().UpdateInvoice(gomock.Any(), gomock.Any()).Return(nil)

		got, err := svc.Cancel(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusCancelled, got.Status)
	})

	t.Run("Paid", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, item)
		inv.Status = invoice.StatusPaid

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)

		_, err := svc.Cancel(context.Background(), inv.ID)
		assert.ErrorIs(t, err, invoice.ErrInvalidState)
	})
}

func TestService_Edit(t *testing.T) {
	customerID := uuid.New()

	t.Run("ReplacesItems", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID, invoice.Item{Description: "Old", Quantity: d("1"), UnitPrice: d("999")})

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)
		m.tx.EXPECT().ReplaceItems(gomock.Any(), gomock.Any()).Return(nil)
		m.tx.EXPECT().UpdateInvoice(gomock.Any(), gomock.Any()).Return(nil)

		got, err := svc.Edit(context.Background(), inv.ID, invoice.EditParams{
			Items:         []invoice.ItemParams{{Description: "New", Quantity: d("2"), UnitPrice: d("100")}},
			TaxPercentage: new(decimal.Zero),
		})
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "New", got.Items[0].Description)
		assertMoney(t, "200.00", got.Total, "total")
	})

	t.Run("NotDraft", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID)
		inv.Status = invoice.StatusPending

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)

		_, err := svc.Edit(context.Background(), inv.ID, invoice.EditParams{})
		assert.ErrorIs(t, err, invoice.ErrInvalidState)
	})
}

func TestService_Delete(t *testing.T) {
	customerID := uuid.New()

	t.Run("Paid", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID)
		inv.Status = invoice.StatusPaid

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)

		err := svc.Delete(context.Background(), inv.ID)
		assert.ErrorIs(t, err, invoice.ErrInvalidState)
	})

	t.Run("Pending", func(t *testing.T) {
		m, svc := newMocks(t)
		inv := draftInvoice(customerID)
		inv.Status = invoice.StatusPending

		m.runTx()
		m.tx.EXPECT().LockInvoice(gomock.Any(), inv.ID).Return(inv, nil)
		m.tx.EXPECT().UpdateInvoice(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, got *invoice.Invoice) error {
				assert.NotNil(t, got.DeletedAt)
				return nil
			})

		assert.NoError(t, svc.Delete(context.Background(), inv.ID))
	})
}

func TestService_List(t *testing.T) {
	tests := []struct {
		name      string
		filter    invoice.ListFilter
		wantLimit int
	}{
		{"Default", invoice.ListFilter{}, invoice.DefaultListLimit},
		{"Clamped", invoice.ListFilter{Limit: 1000}, invoice.MaxListLimit},
		{"Explicit", invoice.ListFilter{Limit: 5, Offset: 10}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, svc := newMocks(t)

			m.repo.EXPECT().
				ListInvoices(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, f invoice.ListFilter) ([]*invoice.Invoice, int, error) {
					assert.Equal(t, tt.wantLimit, f.Limit)
					assert.Equal(t, 2026, f.AsOf.Year())

					return []*invoice.Invoice{{ID: uuid.New()}}, 42, nil
				})

			got, err := svc.List(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, 42, got.Total)
			assert.Len(t, got.Invoices, 1)
		})
	}

	t.Run("UnknownStatus", func(t *testing.T) {
		_, svc := newMocks(t)

		_, err := svc.List(context.Background(), invoice.ListFilter{Status: new(invoice.Status("archived"))})
		assert.ErrorIs(t, err, invoice.ErrValidation)
	})
}

func TestService_Get_HidesDeleted(t *testing.T) {
	m, svc := newMocks(t)

	id := uuid.New()
	m.repo.EXPECT().GetInvoice(gomock.Any(), id).Return(&invoice.Invoice{ID: id, DeletedAt: &fixedNow}, nil)

	_, err := svc.Get(context.Background(), id)
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}
