package lines

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "10", want: "10"},
		{in: "10,50", want: "10.5"},
		{in: "10.50", want: "10.5"},
		{in: "1.234,56", want: "1234.56"},
		{in: "1,234.56", want: "1234.56"},
		{in: "1,234", want: "1234"},
		{in: "1.234.567", want: "1234567"},
		{in: "€ 99,90", want: "99.9"},
		{in: "1 000,00", want: "1000"},
		{in: "-5", want: "-5"},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseDiscount(t *testing.T) {
	pct, amt, err := parseDiscount("12,5%")
	require.NoError(t, err)
	assert.True(t, pct.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, amt.IsZero())

	pct, amt, err = parseDiscount("3.00")
	require.NoError(t, err)
	assert.True(t, pct.IsZero())
	assert.True(t, amt.Equal(decimal.RequireFromString("3")))

	pct, amt, err = parseDiscount("")
	require.NoError(t, err)
	assert.True(t, pct.IsZero() && amt.IsZero())
}
