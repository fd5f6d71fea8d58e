package importer

import (
	"io"

	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
)

type Format string

const (
	FormatCSV Format = "csv"
)

// Importer turns an uploaded file into line items for a draft invoice.
type Importer interface {
	Parse(r io.Reader) ([]invoice.ItemParams, error)
}
