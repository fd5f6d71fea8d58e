package importer

import (
	"fmt"
	"io"

	"github.com/MrJamesThe3rd/invoicer/internal/importer/lines"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
)

type Service struct {
	importers map[Format]Importer
}

func NewService() *Service {
	return &Service{
		importers: map[Format]Importer{
			FormatCSV: lines.NewParser(),
		},
	}
}

func (s *Service) Import(format Format, r io.Reader) ([]invoice.ItemParams, error) {
	if format == "" {
		format = FormatCSV
	}

	imp, ok := s.importers[format]
	if !ok {
		return nil, &invoice.ValidationError{Field: "format", Reason: fmt.Sprintf("unknown import format %q", format)}
	}

	return imp.Parse(r)
}
