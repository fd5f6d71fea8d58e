package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/invoicer/internal/app"
	"github.com/MrJamesThe3rd/invoicer/internal/config"
	invoicerHttp "github.com/MrJamesThe3rd/invoicer/internal/http"
	"github.com/MrJamesThe3rd/invoicer/internal/http/auth"
	customerHandler "github.com/MrJamesThe3rd/invoicer/internal/http/customer"
	invoiceHandler "github.com/MrJamesThe3rd/invoicer/internal/http/invoice"
	productHandler "github.com/MrJamesThe3rd/invoicer/internal/http/product"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(cfg.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	opts := invoicerHttp.Options{AllowedOrigins: cfg.CORS.AllowedOrigins}
	if cfg.Auth.JWTSecret != "" {
		opts.Auth = auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		slog.Warn("JWT_SECRET not set; the API is unauthenticated")
	}

	var (
		invoiceH  = invoiceHandler.NewHandler(a.Invoices, a.Import, a.Export)
		productH  = productHandler.NewHandler(a.Stock)
		customerH = customerHandler.NewHandler(a.Customers, a.Invoices)
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      invoicerHttp.New(opts, invoiceH, productH, customerH),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "name", cfg.App.Name, "port", srv.Addr, "storage", cfg.App.Storage)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
