package lines_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/invoicer/internal/importer/lines"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParser_Parse(t *testing.T) {
	productID := uuid.MustParse("6f1c2a7e-3d4b-4c8e-9a1f-0b2c3d4e5f60")

	type testCase struct {
		name    string
		content string
		wantLen int
		verify  func(t *testing.T, items []invoice.ItemParams)
		wantErr error
	}

	tests := []testCase{
		{
			name: "English layout with comma separator",
			content: `description,quantity,unit_price,discount,product_id
Widget,2,50.00,10%,` + productID.String() + `
Consulting hours,1.5,"1,200.00",25,
`,
			wantLen: 2,
			verify: func(t *testing.T, items []invoice.ItemParams) {
				assert.Equal(t, "Widget", items[0].Description)
				assert.True(t, items[0].Quantity.Equal(dec("2")))
				assert.True(t, items[0].UnitPrice.Equal(dec("50")))
				assert.True(t, items[0].DiscountPercentage.Equal(dec("10")))
				assert.True(t, items[0].DiscountAmount.IsZero())
				require.NotNil(t, items[0].ProductID)
				assert.Equal(t, productID, *items[0].ProductID)

				assert.True(t, items[1].Quantity.Equal(dec("1.5")))
				assert.True(t, items[1].UnitPrice.Equal(dec("1200")))
				assert.True(t, items[1].DiscountAmount.Equal(dec("25")))
				assert.Nil(t, items[1].ProductID)
			},
		},
		{
			name: "Portuguese layout after preamble",
			content: `Orçamento;Cliente ACME

Descrição;Quantidade;Preço unitário;Desconto
Parafusos;100;0,15;
Serviço de montagem;1;1.250,50;5%
`,
			wantLen: 2,
			verify: func(t *testing.T, items []invoice.ItemParams) {
				assert.Equal(t, "Parafusos", items[0].Description)
				assert.True(t, items[0].UnitPrice.Equal(dec("0.15")))
				assert.True(t, items[1].UnitPrice.Equal(dec("1250.50")))
				assert.True(t, items[1].DiscountPercentage.Equal(dec("5")))
			},
		},
		{
			name: "Blank rows are skipped",
			content: `description;qty;price
A;1;10

B;2;20
`,
			wantLen: 2,
		},
		{
			name:    "Empty file",
			content: "",
			wantLen: 0,
		},
		{
			name:    "Header only",
			content: "description;quantity;unit price\n",
			wantLen: 0,
		},
		{
			name:    "Missing columns",
			content: "name;amount\nWidget;10\n",
			wantErr: invoice.ErrValidation,
		},
		{
			name:    "Bad quantity",
			content: "description;quantity;unit price\nWidget;two;10\n",
			wantErr: invoice.ErrValidation,
		},
		{
			name:    "Missing description",
			content: "description;quantity;unit price\n;1;10\n",
			wantErr: invoice.ErrValidation,
		},
		{
			name:    "Bad product id",
			content: "description;quantity;unit price;product\nWidget;1;10;abc\n",
			wantErr: invoice.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := lines.NewParser().Parse(strings.NewReader(tt.content))

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

				return
			}

			require.NoError(t, err)
			assert.Len(t, items, tt.wantLen)

			if tt.verify != nil {
				tt.verify(t, items)
			}
		})
	}
}

func TestParser_RowErrorNamesRow(t *testing.T) {
	_, err := lines.NewParser().Parse(strings.NewReader("description;quantity;unit price\nA;1;10\nB;1;x\n"))

	var ve *invoice.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "row 3", ve.Field)
}
