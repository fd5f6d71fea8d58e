package stock

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
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

// Repository performs the stock mutations. Reserve and Release must each be a single
// atomic conditional statement, never a read followed by a write.
//
//go:generate mockgen -source=adjuster.go -destination=repository_mock.go -package=stock
type Repository interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	// Reserve decrements stock by qty only when the product is active and holds at least qty.
	// The status flips to out_of_stock when the result is zero.
	Reserve(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (*Product, error)
	// Release increments stock by qty and reverts out_of_stock to active.
	Release(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (*Product, error)
}

// Adjuster is the only entry point for changing a product's on-hand quantity.
type Adjuster struct {
	repo Repository
}

func NewAdjuster(repo Repository) *Adjuster {
	return &Adjuster{repo: repo}
}

func checkQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidQuantity, qty)
	}

	if err := money.CheckAmount(qty); err != nil {
		return fmt.Errorf("%w: %s %v", ErrInvalidQuantity, qty, err)
	}

	return nil
}

// Check reports whether qty units could be reserved right now without reserving them.
func (a *Adjuster) Check(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (*Product, error) {
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}

	p, err := a.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusActive || p.Stock.LessThan(qty) {
		return p, fmt.Errorf("%w: product %s has %s available (%s), requested %s",
			ErrInsufficientStock, id, money.Format(p.Stock), p.Status, money.Format(qty))
	}

	return p, nil
}

// Reserve atomically takes qty units out of stock.
func (a *Adjuster) Reserve(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (*Product, error) {
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}

	p, err := a.repo.Reserve(ctx, id, qty)
	if err != nil {
		return nil, fmt.Errorf("reserving %s of product %s: %w", money.Format(qty), id, err)
	}

	slog.Debug("stock reserved", "product_id", id, "quantity", qty.String(), "stock", p.Stock.String())

	if p.LowStock() {
		slog.Warn("product stock at or below minimum", "product_id", id, "sku", p.SKU,
			"stock", p.Stock.String(), "min_stock", p.MinStock.String())
	}

	return p, nil
}

// Release puts qty units back into stock.
func (a *Adjuster) Release(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (*Product, error) {
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}

	p, err := a.repo.Release(ctx, id, qty)
	if err != nil {
		return nil, fmt.Errorf("releasing %s of product %s: %w", money.Format(qty), id, err)
	}

	slog.Debug("stock released", "product_id", id, "quantity", qty.String(), "stock", p.Stock.String())

	return p, nil
}

// Get returns the current stock view of a product.
func (a *Adjuster) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	return a.repo.GetProduct(ctx, id)
}
