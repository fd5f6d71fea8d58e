package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/database"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
)

// Store runs against either the pool or an open transaction.
type Store struct {
	db database.DBTX
}

func New(db database.DBTX) *Store {
	return &Store{db: db}
}

const productColumns = `id, sku, name, stock, min_stock, status, updated_at`

func scanProduct(s database.Scanner) (*stock.Product, error) {
	var p stock.Product

	var statusStr string

	if err := s.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.MinStock, &statusStr, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.Status = stock.Status(statusStr)

	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*stock.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND deleted_at IS NULL`

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrProductNotFound
		}

		return nil, fmt.Errorf("getting product: %w", err)
	}

	return p, nil
}

// Reserve decrements stock with a single conditional UPDATE. Two concurrent callers
// competing for the last unit cannot both match the stock >= $1 predicate.
func (s *Store) Reserve(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (*stock.Product, error) {
	query := `
		UPDATE products
		SET stock = stock - $1,
		    status = CASE WHEN stock - $1 = 0 THEN 'out_of_stock' ELSE status END,
		    updated_at = NOW()
		WHERE id = $2
		  AND deleted_at IS NULL
		  AND status = 'active'
		  AND stock >= $1
		RETURNING ` + productColumns

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, qty, id))
	if err == nil {
		return p, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reserving stock: %w", err)
	}

	// Nothing matched: tell a missing product apart from a short one.
	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("%w: %s available (%s), requested %s",
		stock.ErrInsufficientStock, current.Stock.StringFixed(2), current.Status, qty.StringFixed(2))
}

func (s *Store) Release(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (*stock.Product, error) {
	query := `
		UPDATE products
		SET stock = stock + $1,
		    status = CASE WHEN status = 'out_of_stock' AND stock + $1 > 0 THEN 'active' ELSE status END,
		    updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
		RETURNING ` + productColumns

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, qty, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrProductNotFound
		}

		return nil, fmt.Errorf("releasing stock: %w", err)
	}

	return p, nil
}
