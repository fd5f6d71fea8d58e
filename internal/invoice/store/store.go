package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	customerstore "github.com/MrJamesThe3rd/invoicer/internal/customer/store"
	"github.com/MrJamesThe3rd/invoicer/internal/database"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
	stockstore "github.com/MrJamesThe3rd/invoicer/internal/stock/store"
)

const numberConstraint = "invoices_number_active_key"

type Store struct {
	db     *sql.DB
	runner *database.TxRunner
}

// New returns a store whose lifecycle transactions are bounded by txTimeout (zero for none).
func New(db *sql.DB, txTimeout time.Duration) *Store {
	return &Store{db: db, runner: database.NewTxRunner(db, txTimeout)}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx invoice.Tx) error) error {
	return s.runner.Run(ctx, func(ctx context.Context, sqlTx *sql.Tx) error {
		return fn(ctx, &txStore{queries: queries{db: sqlTx}})
	})
}

func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return queries{db: s.db}.load(ctx, `i.id = $1`, false, id)
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*invoice.Invoice, error) {
	return queries{db: s.db}.load(ctx, `i.number = $1 AND i.deleted_at IS NULL`, false, number)
}

func (s *Store) ListInvoices(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, int, error) {
	where := []string{"TRUE"}

	var args []any

	argIdx := 1

	add := func(cond string, arg any) {
		where = append(where, fmt.Sprintf(cond, argIdx))
		args = append(args, arg)
		argIdx++
	}

	if !filter.IncludeDeleted {
		where = append(where, "i.deleted_at IS NULL")
	}

	if filter.Status != nil {
		if *filter.Status == invoice.StatusOverdue {
			where = append(where, "i.status IN ('pending', 'partially_paid')")
			add("i.due_date < $%d", filter.AsOf)
		} else {
			add("i.status = $%d", string(*filter.Status))
		}
	}

	if filter.CustomerID != nil {
		add("i.customer_id = $%d", *filter.CustomerID)
	}

	if filter.StartDate != nil {
		add("i.issue_date >= $%d", *filter.StartDate)
	}

	if filter.EndDate != nil {
		add("i.issue_date <= $%d", *filter.EndDate)
	}

	if filter.Search != "" {
		add("i.number ILIKE $%d", "%"+filter.Search+"%")
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices i WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting invoices: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices i WHERE %s
		ORDER BY i.issue_date DESC, i.number DESC
		LIMIT $%d OFFSET $%d`, invoiceColumns, cond, argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing invoices: %w", err)
	}
	defer rows.Close()

	var out []*invoice.Invoice

	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning invoice: %w", err)
		}

		out = append(out, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing invoices: %w", err)
	}

	return out, total, nil
}

const invoiceColumns = `
	i.id, i.number, i.issue_date, i.due_date, i.status, i.payment_method,
	i.tax_percentage, i.discount_percentage, i.discount_amount, i.applied_discount,
	i.subtotal, i.tax_amount, i.total, i.paid_amount, i.balance_due,
	i.customer_id, i.created_by, i.notes, i.version,
	i.created_at, i.updated_at, i.deleted_at
`

func scanInvoice(s database.Scanner) (*invoice.Invoice, error) {
	var inv invoice.Invoice

	var statusStr string

	if err := s.Scan(
		&inv.ID, &inv.Number, &inv.IssueDate, &inv.DueDate, &statusStr, &inv.PaymentMethod,
		&inv.TaxPercentage, &inv.DiscountPercentage, &inv.DiscountAmount, &inv.AppliedDiscount,
		&inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.PaidAmount, &inv.BalanceDue,
		&inv.CustomerID, &inv.CreatedBy, &inv.Notes, &inv.Version,
		&inv.CreatedAt, &inv.UpdatedAt, &inv.DeletedAt,
	); err != nil {
		return nil, err
	}

	inv.Status = invoice.Status(statusStr)

	return &inv, nil
}

// queries holds the reads shared by the pool-backed store and the transaction.
type queries struct {
	db database.DBTX
}

func (q queries) load(ctx context.Context, cond string, lock bool, args ...any) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices i WHERE ` + cond
	if lock {
		query += ` FOR UPDATE`
	}

	inv, err := scanInvoice(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	if inv.Items, err = q.items(ctx, inv.ID); err != nil {
		return nil, err
	}

	if inv.Payments, err = q.payments(ctx, inv.ID); err != nil {
		return nil, err
	}

	return inv, nil
}

func (q queries) items(ctx context.Context, invoiceID uuid.UUID) ([]invoice.Item, error) {
	query := `
		SELECT id, position, description, quantity, unit_price,
		       discount_percentage, discount_amount, applied_discount, subtotal, product_id
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`

	rows, err := q.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("listing invoice items: %w", err)
	}
	defer rows.Close()

	var items []invoice.Item

	for rows.Next() {
		var it invoice.Item
		if err := rows.Scan(
			&it.ID, &it.Position, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.DiscountPercentage, &it.DiscountAmount, &it.AppliedDiscount, &it.Subtotal, &it.ProductID,
		); err != nil {
			return nil, fmt.Errorf("scanning invoice item: %w", err)
		}

		items = append(items, it)
	}

	return items, rows.Err()
}

func (q queries) payments(ctx context.Context, invoiceID uuid.UUID) ([]invoice.Payment, error) {
	query := `
		SELECT id, invoice_id, amount, method, reference, paid_at
		FROM invoice_payments
		WHERE invoice_id = $1
		ORDER BY paid_at, created_at
	`

	rows, err := q.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("listing invoice payments: %w", err)
	}
	defer rows.Close()

	var payments []invoice.Payment

	for rows.Next() {
		var p invoice.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scanning invoice payment: %w", err)
		}

		payments = append(payments, p)
	}

	return payments, rows.Err()
}

// txStore implements invoice.Tx on top of one *sql.Tx.
type txStore struct {
	queries
}

func (t *txStore) Stock() stock.Repository {
	return stockstore.New(t.db)
}

func (t *txStore) Customers() customer.Repository {
	return customerstore.New(t.db)
}

func (t *txStore) LockInvoice(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return t.load(ctx, `i.id = $1`, true, id)
}

// NextNumber allocates the next sequence value for year. The upsert takes a row lock on
// the year, so concurrent creates are handed distinct values.
func (t *txStore) NextNumber(ctx context.Context, year int) (int64, error) {
	query := `
		INSERT INTO invoice_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value
	`

	var seq int64
	if err := t.db.QueryRowContext(ctx, query, year).Scan(&seq); err != nil {
		return 0, fmt.Errorf("allocating sequence for %d: %w", year, err)
	}

	return seq, nil
}

func (t *txStore) ClaimNumber(ctx context.Context, year int, seq int64) error {
	query := `
		INSERT INTO invoice_sequences (year, last_value)
		VALUES ($1, $2)
		ON CONFLICT (year) DO UPDATE SET last_value = GREATEST(invoice_sequences.last_value, EXCLUDED.last_value)
	`

	if _, err := t.db.ExecContext(ctx, query, year, seq); err != nil {
		return fmt.Errorf("claiming sequence %d for %d: %w", seq, year, err)
	}

	return nil
}

func (t *txStore) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool

	err := t.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE number = $1 AND deleted_at IS NULL)`, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking invoice number: %w", err)
	}

	return exists, nil
}

func (t *txStore) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (
			number, issue_date, due_date, status, payment_method,
			tax_percentage, discount_percentage, discount_amount, applied_discount,
			subtotal, tax_amount, total, paid_amount, balance_due,
			customer_id, created_by, notes, version, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1, NOW())
		RETURNING id, version, created_at
	`

	err := t.db.QueryRowContext(ctx, query,
		inv.Number, inv.IssueDate, inv.DueDate, inv.Status, inv.PaymentMethod,
		inv.TaxPercentage, inv.DiscountPercentage, inv.DiscountAmount, inv.AppliedDiscount,
		inv.Subtotal, inv.TaxAmount, inv.Total, inv.PaidAmount, inv.BalanceDue,
		inv.CustomerID, inv.CreatedBy, inv.Notes,
	).Scan(&inv.ID, &inv.Version, &inv.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, numberConstraint) {
			return fmt.Errorf("%w: %s", invoice.ErrDuplicateNumber, inv.Number)
		}

		return fmt.Errorf("inserting invoice: %w", err)
	}

	return t.insertItems(ctx, inv)
}

func (t *txStore) insertItems(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoice_items (
			invoice_id, position, description, quantity, unit_price,
			discount_percentage, discount_amount, applied_discount, subtotal, product_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	for i := range inv.Items {
		it := &inv.Items[i]

		err := t.db.QueryRowContext(ctx, query,
			inv.ID, it.Position, it.Description, it.Quantity, it.UnitPrice,
			it.DiscountPercentage, it.DiscountAmount, it.AppliedDiscount, it.Subtotal, it.ProductID,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("inserting item %d: %w", it.Position, err)
		}
	}

	return nil
}

// UpdateInvoice writes the header row and bumps its version. Items and payments are
// written by ReplaceItems and AddPayment.
func (t *txStore) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		UPDATE invoices
		SET due_date = $1, status = $2, payment_method = $3,
		    tax_percentage = $4, discount_percentage = $5, discount_amount = $6, applied_discount = $7,
		    subtotal = $8, tax_amount = $9, total = $10, paid_amount = $11, balance_due = $12,
		    notes = $13, deleted_at = $14,
		    version = version + 1, updated_at = NOW()
		WHERE id = $15
		RETURNING version, updated_at
	`

	err := t.db.QueryRowContext(ctx, query,
		inv.DueDate, inv.Status, inv.PaymentMethod,
		inv.TaxPercentage, inv.DiscountPercentage, inv.DiscountAmount, inv.AppliedDiscount,
		inv.Subtotal, inv.TaxAmount, inv.Total, inv.PaidAmount, inv.BalanceDue,
		inv.Notes, inv.DeletedAt, inv.ID,
	).Scan(&inv.Version, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invoice.ErrNotFound
		}

		if database.IsUniqueViolation(err, numberConstraint) {
			return fmt.Errorf("%w: %s", invoice.ErrDuplicateNumber, inv.Number)
		}

		return fmt.Errorf("updating invoice: %w", err)
	}

	return nil
}

func (t *txStore) ReplaceItems(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("deleting invoice items: %w", err)
	}

	return t.insertItems(ctx, inv)
}

func (t *txStore) AddPayment(ctx context.Context, p *invoice.Payment) error {
	query := `
		INSERT INTO invoice_payments (invoice_id, amount, method, reference, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	if err := t.db.QueryRowContext(ctx, query, p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidAt).Scan(&p.ID); err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}

	return nil
}
