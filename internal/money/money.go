// Package money computes invoice totals using fixed-point decimal arithmetic.
// Every value it returns is rounded to two decimal places.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places persisted for amounts, quantities and percentages.
const Places = 2

var (
	ErrNegative     = errors.New("must not be negative")
	ErrPrecision    = errors.New("must have at most two decimal places")
	ErrPercentRange = errors.New("must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Percent returns pct percent of base, unrounded.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// CheckAmount reports whether d is a valid persisted amount or quantity.
func CheckAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegative
	}

	if !d.Equal(Round(d)) {
		return ErrPrecision
	}

	return nil
}

// CheckPercent reports whether d is a valid percentage.
func CheckPercent(d decimal.Decimal) error {
	if err := CheckAmount(d); err != nil {
		return err
	}

	if d.GreaterThan(hundred) {
		return ErrPercentRange
	}

	return nil
}

// Format renders d with exactly two decimals, e.g. "238.00".
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// MustParse parses s and panics on malformed input. Intended for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("money: parse %q: %v", s, err))
	}

	return d
}
