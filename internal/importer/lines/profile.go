package lines

import "strings"

// Profile maps the header names of one spreadsheet layout onto line item fields.
// Discount and ProductID are optional columns.
type Profile struct {
	Name        string
	Description []string
	Quantity    []string
	UnitPrice   []string
	Discount    []string
	ProductID   []string
}

// profiles is tried in order against every row until one matches as a header.
var profiles = []Profile{
	{
		Name:        "en",
		Description: []string{"description", "item"},
		Quantity:    []string{"quantity", "qty"},
		UnitPrice:   []string{"unit_price", "unit price", "price"},
		Discount:    []string{"discount"},
		ProductID:   []string{"product_id", "product id", "product"},
	},
	{
		Name:        "pt",
		Description: []string{"descrição", "descricao", "artigo"},
		Quantity:    []string{"quantidade", "qtd"},
		UnitPrice:   []string{"preço unitário", "preco unitario", "preço", "preco"},
		Discount:    []string{"desconto"},
		ProductID:   []string{"produto", "id produto"},
	},
}

// colIndex maps lowercased header names to their column index.
type colIndex map[string]int

func newColIndex(row []string) colIndex {
	cols := make(colIndex, len(row))

	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		if name != "" {
			cols[name] = i
		}
	}

	return cols
}

// find returns the index of the first alias present, or -1.
func (c colIndex) find(aliases []string) int {
	for _, a := range aliases {
		if i, ok := c[a]; ok {
			return i
		}
	}

	return -1
}

// layout is a profile resolved against a concrete header row.
type layout struct {
	profile     *Profile
	description int
	quantity    int
	unitPrice   int
	discount    int
	productID   int
}

func (p *Profile) resolve(cols colIndex) (layout, bool) {
	l := layout{
		profile:     p,
		description: cols.find(p.Description),
		quantity:    cols.find(p.Quantity),
		unitPrice:   cols.find(p.UnitPrice),
		discount:    cols.find(p.Discount),
		productID:   cols.find(p.ProductID),
	}

	return l, l.description >= 0 && l.quantity >= 0 && l.unitPrice >= 0
}
