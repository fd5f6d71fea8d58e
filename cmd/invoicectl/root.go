package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/invoicer/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "invoicectl",
	Short:         "Operator tasks for the invoice ledger",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}

		cfg = loaded
		slog.SetDefault(cfg.Logger())

		return nil
	},
}
