package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/invoicer/internal/app"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

var repairBalanceCmd = &cobra.Command{
	Use:   "repair-balance <customer-id>",
	Short: "Recompute a customer's running balance from open invoices",
	Long: `Recompute a customer's running balance as the sum of the balance due of its
pending and partially paid invoices, and store it. Use it when the stored balance has
drifted; normal operation keeps the balance up to date on its own.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid customer id %q: %w", args[0], err)
		}

		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Invoices.RepairCustomerBalance(cmd.Context(), id)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s balance=%s available=%s\n",
			c.ID, c.Name, money.Format(c.CurrentBalance), money.Format(c.AvailableCredit()))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(repairBalanceCmd)
}
