package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the sale availability of a product.
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusOutOfStock Status = "out_of_stock"
)

// Product holds the stock-related fields of a catalog product.
// Stock is never negative.
type Product struct {
	ID        uuid.UUID
	SKU       string
	Name      string
	Stock     decimal.Decimal
	MinStock  decimal.Decimal
	Status    Status
	UpdatedAt *time.Time
}

// LowStock reports whether the on-hand quantity is at or below a configured minimum.
func (p *Product) LowStock() bool {
	return p.MinStock.IsPositive() && p.Stock.LessThanOrEqual(p.MinStock)
}
