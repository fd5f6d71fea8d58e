package lines

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	enc "github.com/MrJamesThe3rd/invoicer/internal/encoding"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
)

// Parser reads line items from a spreadsheet CSV export. The header row may be preceded
// by free-form rows; the column separator is ';' or ',' whichever the first line uses more.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(r io.Reader) ([]invoice.ItemParams, error) {
	utf8r, charset, err := enc.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	br := bufio.NewReader(utf8r)

	reader := csv.NewReader(br)
	reader.Comma = sniffSeparator(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &invoice.ValidationError{Field: "file", Reason: fmt.Sprintf("reading csv: %v", err)}
	}

	if len(rows) == 0 {
		return nil, nil
	}

	l, headerIdx, ok := detectLayout(rows)
	if !ok {
		return nil, &invoice.ValidationError{
			Field:  "file",
			Reason: "no header row found: expected description, quantity and unit price columns",
		}
	}

	slog.Debug("parsing line items", "profile", l.profile.Name, "charset", charset, "rows", len(rows)-headerIdx-1)

	return parseRows(l, rows[headerIdx+1:], headerIdx+1)
}

func sniffSeparator(br *bufio.Reader) rune {
	line, _ := br.Peek(br.Size())
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}

	if strings.Count(string(line), ";") >= strings.Count(string(line), ",") && strings.Contains(string(line), ";") {
		return ';'
	}

	return ','
}

func detectLayout(rows [][]string) (layout, int, bool) {
	for rowIdx, row := range rows {
		cols := newColIndex(row)

		for i := range profiles {
			if l, ok := profiles[i].resolve(cols); ok {
				return l, rowIdx, true
			}
		}
	}

	return layout{}, 0, false
}

// parseRows converts data rows. Blank rows are skipped; any malformed row rejects the
// whole file so a draft is never half imported.
func parseRows(l layout, rows [][]string, headerRowNum int) ([]invoice.ItemParams, error) {
	var items []invoice.ItemParams

	for i, row := range rows {
		rowNum := headerRowNum + i + 1

		desc := cellValue(row, l.description)
		qtyStr := cellValue(row, l.quantity)
		priceStr := cellValue(row, l.unitPrice)

		if desc == "" && qtyStr == "" && priceStr == "" {
			continue
		}

		rowErr := func(reason string) error {
			return &invoice.ValidationError{Field: fmt.Sprintf("row %d", rowNum), Reason: reason}
		}

		if desc == "" {
			return nil, rowErr("missing description")
		}

		qty, err := parseAmount(qtyStr)
		if err != nil {
			return nil, rowErr("quantity: " + err.Error())
		}

		price, err := parseAmount(priceStr)
		if err != nil {
			return nil, rowErr("unit price: " + err.Error())
		}

		item := invoice.ItemParams{
			Description: desc,
			Quantity:    qty,
			UnitPrice:   price,
		}

		if s := cellValue(row, l.discount); s != "" {
			if item.DiscountPercentage, item.DiscountAmount, err = parseDiscount(s); err != nil {
				return nil, rowErr("discount: " + err.Error())
			}
		}

		if s := cellValue(row, l.productID); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, rowErr(fmt.Sprintf("product id %q is not a valid id", s))
			}

			item.ProductID = &id
		}

		items = append(items, item)
	}

	return items, nil
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}
