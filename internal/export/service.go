package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

// Lister is the part of the invoice service a statement reads from.
type Lister interface {
	List(ctx context.Context, filter invoice.ListFilter) (*invoice.ListResult, error)
	Now() time.Time
}

// Service renders customer statements from stored invoices.
type Service struct {
	invoices Lister
}

func NewService(invoices Lister) *Service {
	return &Service{invoices: invoices}
}

var statementHeader = []string{
	"number", "issue_date", "due_date", "status", "total", "paid", "balance_due",
}

// Statement writes every invoice matching filter as CSV, paging through the list so the
// whole result set is exported regardless of the filter's limit. It returns the invoices
// written, in list order.
func (s *Service) Statement(ctx context.Context, filter invoice.ListFilter, w io.Writer) ([]*invoice.Invoice, error) {
	now := s.invoices.Now()

	cw := csv.NewWriter(w)
	if err := cw.Write(statementHeader); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	var written []*invoice.Invoice

	filter.Limit = invoice.MaxListLimit

	for filter.Offset = 0; ; filter.Offset += invoice.MaxListLimit {
		res, err := s.invoices.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("listing invoices: %w", err)
		}

		for _, inv := range res.Invoices {
			record := []string{
				inv.Number,
				inv.IssueDate.Format(time.DateOnly),
				inv.DueDate.Format(time.DateOnly),
				string(inv.EffectiveStatus(now)),
				money.Format(inv.Total),
				money.Format(inv.PaidAmount),
				money.Format(inv.BalanceDue),
			}
			if err := cw.Write(record); err != nil {
				return nil, fmt.Errorf("writing invoice %s: %w", inv.Number, err)
			}
		}

		written = append(written, res.Invoices...)

		if len(res.Invoices) < invoice.MaxListLimit {
			break
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flushing statement: %w", err)
	}

	return written, nil
}

// owed is the receivable part of inv. Drafts and cancelled or paid invoices owe nothing.
func owed(inv *invoice.Invoice) decimal.Decimal {
	if inv.Status != invoice.StatusPending && inv.Status != invoice.StatusPartiallyPaid {
		return decimal.Zero
	}

	return inv.BalanceDue
}

// Summary renders a plain-text digest suitable for pasting into an email, ending with
// the outstanding total.
func (s *Service) Summary(invoices []*invoice.Invoice) string {
	var sb strings.Builder

	now := s.invoices.Now()
	outstanding := decimal.Zero

	for _, inv := range invoices {
		due := owed(inv)

		fmt.Fprintf(&sb, "* %s | %s | %s € | em dívida %s € | %s\n",
			inv.Number,
			inv.DueDate.Format(time.DateOnly),
			money.Format(inv.Total),
			money.Format(due),
			inv.EffectiveStatus(now),
		)

		outstanding = outstanding.Add(due)
	}

	fmt.Fprintf(&sb, "Total em dívida: %s €\n", money.Format(outstanding))

	return sb.String()
}
