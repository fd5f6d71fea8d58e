package money

import (
	"github.com/shopspring/decimal"
)

// Line is the priced input of a single line item.
// DiscountAmount is only used when DiscountPercentage is zero.
type Line struct {
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
}

// Params holds the line items plus invoice-level discount and tax settings.
type Params struct {
	Lines              []Line
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	TaxPercentage      decimal.Decimal
}

// LineTotals is the computed result for one line.
type LineTotals struct {
	Discount decimal.Decimal
	Subtotal decimal.Decimal
}

// Totals is the result of Calculate.
// Total always equals Subtotal - DiscountAmount + TaxAmount.
type Totals struct {
	Lines          []LineTotals
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// LineSubtotal computes the discounted subtotal of a single line, clamped at zero.
// The returned discount never exceeds the line base.
func LineSubtotal(l Line) LineTotals {
	base := l.Quantity.Mul(l.UnitPrice)

	discount := l.DiscountAmount
	if l.DiscountPercentage.IsPositive() {
		discount = Percent(base, l.DiscountPercentage)
	}

	discount = Round(decimal.Min(discount, base))
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	subtotal := Round(base).Sub(discount)
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}

	return LineTotals{Discount: discount, Subtotal: subtotal}
}

// Calculate derives subtotal, discount, tax and total from p.
// It has no hidden state: the same input always yields the same output.
func Calculate(p Params) Totals {
	t := Totals{
		Lines:    make([]LineTotals, len(p.Lines)),
		Subtotal: decimal.Zero,
	}

	for i, l := range p.Lines {
		lt := LineSubtotal(l)
		t.Lines[i] = lt
		t.Subtotal = t.Subtotal.Add(lt.Subtotal)
	}

	discount := p.DiscountAmount
	if p.DiscountPercentage.IsPositive() {
		discount = Percent(t.Subtotal, p.DiscountPercentage)
	}

	discount = Round(discount)
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	if discount.GreaterThan(t.Subtotal) {
		discount = t.Subtotal
	}

	t.DiscountAmount = discount

	taxable := t.Subtotal.Sub(discount)
	t.TaxAmount = Round(Percent(taxable, p.TaxPercentage))
	t.Total = taxable.Add(t.TaxAmount)

	return t
}
