package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/invoicer/internal/app"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

var overdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List open invoices past their due date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		invoices, err := a.Invoices.Overdue(cmd.Context())
		if err != nil {
			return err
		}

		renderOverdue(cmd.OutOrStdout(), invoices, a.Invoices.Now())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(overdueCmd)
}

func renderOverdue(w io.Writer, invoices []*invoice.Invoice, now time.Time) {
	if len(invoices) == 0 {
		fmt.Fprintln(w, "No overdue invoices.")
		return
	}

	t := table.New().Headers("Number", "Customer", "Due", "Days late", "Balance due")

	for _, inv := range invoices {
		late := int(invoice.DateOnly(now).Sub(invoice.DateOnly(inv.DueDate)).Hours() / 24)

		t.Row(
			inv.Number,
			inv.CustomerID.String(),
			inv.DueDate.Format(time.DateOnly),
			fmt.Sprint(late),
			money.Format(inv.BalanceDue),
		)
	}

	fmt.Fprintln(w, t.Render())
}
