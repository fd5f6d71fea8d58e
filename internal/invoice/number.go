package invoice

import (
	"fmt"
	"regexp"
	"strconv"
)

const numberPrefix = "INV"

var numberPattern = regexp.MustCompile(`^INV-(\d{4})-(\d{6})$`)

// FormatNumber renders INV-<year>-<seq> with a six-digit zero-padded sequence.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", numberPrefix, year, seq)
}

// ParseNumber splits a well-formed invoice number into its year and sequence.
func ParseNumber(number string) (year int, seq int64, err error) {
	m := numberPattern.FindStringSubmatch(number)
	if m == nil {
		return 0, 0, &ValidationError{Field: "number", Reason: fmt.Sprintf("%q does not match INV-YYYY-NNNNNN", number)}
	}

	year, _ = strconv.Atoi(m[1])
	seq, _ = strconv.ParseInt(m[2], 10, 64)

	if seq == 0 {
		return 0, 0, &ValidationError{Field: "number", Reason: "sequence must start at 1"}
	}

	return year, seq, nil
}
