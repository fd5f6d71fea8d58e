package lines

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount accepts both "1.234,56" and "1,234.56" style numbers. The right-most of
// '.' and ',' is the decimal separator; a lone comma followed by exactly three
// digits is read as a thousands separator.
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer(" ", "", "\u00a0", "", "€", "", "$", "", "EUR", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") > 1 || len(clean)-lastComma-1 == 3 {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.Replace(clean, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(clean, ".") > 1 {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}

	return d, nil
}

// parseDiscount reads "10%" as a percentage and anything else as an amount.
func parseDiscount(s string) (pct, amount decimal.Decimal, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, decimal.Zero, nil
	}

	if rest, ok := strings.CutSuffix(s, "%"); ok {
		pct, err = parseAmount(rest)
		return pct, decimal.Zero, err
	}

	amount, err = parseAmount(s)

	return decimal.Zero, amount, err
}
