// Package app wires the ledger services onto the configured storage.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/invoicer/internal/config"
	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	customerStore "github.com/MrJamesThe3rd/invoicer/internal/customer/store"
	"github.com/MrJamesThe3rd/invoicer/internal/database"
	"github.com/MrJamesThe3rd/invoicer/internal/export"
	"github.com/MrJamesThe3rd/invoicer/internal/importer"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	invoiceStore "github.com/MrJamesThe3rd/invoicer/internal/invoice/store"
	"github.com/MrJamesThe3rd/invoicer/internal/memstore"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
	stockStore "github.com/MrJamesThe3rd/invoicer/internal/stock/store"
)

type App struct {
	Invoices  *invoice.Service
	Stock     *stock.Adjuster
	Customers *customer.Guard
	Import    *importer.Service
	Export    *export.Service

	// DB is nil with in-memory storage.
	DB *sql.DB
	// Memory is set with in-memory storage so callers can seed it.
	Memory *memstore.Store
}

// Open connects to the configured storage, applies pending migrations and builds the
// services. Close releases the database.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		repo      invoice.Repository
		products  stock.Repository
		customers customer.Repository
		a         = &App{}
	)

	switch cfg.App.Storage {
	case config.StorageMemory:
		slog.Warn("using in-memory storage; data is lost on exit")

		a.Memory = memstore.New()
		repo, products, customers = a.Memory, a.Memory.Products(), a.Memory.Customers()
	default:
		db, err := database.New(cfg.ConnectionString(), database.Options{MaxOpenConns: cfg.DB.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}

		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}

		a.DB = db
		repo, products, customers = invoiceStore.New(db, cfg.DB.TxTimeout), stockStore.New(db), customerStore.New(db)
	}

	a.Invoices = invoice.NewService(repo,
		invoice.WithDefaultDueDays(cfg.Invoice.DefaultDueDays),
		invoice.WithDefaultTax(cfg.Invoice.DefaultTax),
	)
	a.Stock = stock.NewAdjuster(products)
	a.Customers = customer.NewGuard(customers)
	a.Import = importer.NewService()
	a.Export = export.NewService(a.Invoices)

	return a, nil
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}

	return a.DB.Close()
}
