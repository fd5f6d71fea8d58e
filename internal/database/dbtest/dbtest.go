// Package dbtest opens a migrated Postgres database for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/invoicer/internal/database"
)

// Open connects to DATABASE_URL, applies migrations and empties every table.
// The test is skipped when DATABASE_URL is not set.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := database.New(url, database.Options{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db))

	_, err = db.ExecContext(ctx, `
		TRUNCATE invoice_payments, invoice_items, invoices, invoice_sequences, products, customers
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)

	return db
}

// SeedCustomer inserts an active customer and returns its id.
func SeedCustomer(t *testing.T, db *sql.DB, creditLimit, balance string) uuid.UUID {
	t.Helper()

	var id uuid.UUID

	err := db.QueryRowContext(context.Background(), `
		INSERT INTO customers (name, email, credit_limit, current_balance)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, "Test Customer", uuid.NewString()+"@example.com",
		decimal.RequireFromString(creditLimit), decimal.RequireFromString(balance)).Scan(&id)
	require.NoError(t, err)

	return id
}

// SeedProduct inserts an active product with the given on-hand stock and returns its id.
func SeedProduct(t *testing.T, db *sql.DB, price, stock string) uuid.UUID {
	t.Helper()

	var id uuid.UUID

	err := db.QueryRowContext(context.Background(), `
		INSERT INTO products (sku, name, price, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, "SKU-"+uuid.NewString()[:8], "Test Product",
		decimal.RequireFromString(price), decimal.RequireFromString(stock)).Scan(&id)
	require.NoError(t, err)

	return id
}
