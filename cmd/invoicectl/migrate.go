package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/invoicer/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
			if err := database.Migrate(ctx, db); err != nil {
				return err
			}

			slog.Info("database is up to date", "database", cfg.DB.Name)

			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), database.MigrationStatus)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withDB(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	db, err := database.New(cfg.ConnectionString(), database.Options{MaxOpenConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, db)
}
