package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Storage string

const (
	StoragePostgres Storage = "postgres"
	StorageMemory   Storage = "memory"
)

type Config struct {
	App struct {
		Name      string  `envconfig:"APP_NAME" default:"Invoicer"`
		Port      int     `envconfig:"PORT" default:"8080"`
		LogLevel  string  `envconfig:"LOG_LEVEL" default:"info"`
		LogFormat string  `envconfig:"LOG_FORMAT" default:"text"`
		Storage   Storage `envconfig:"STORAGE" default:"postgres"`
	}

	DB struct {
		Host      string        `envconfig:"DB_HOST" default:"localhost"`
		Port      int           `envconfig:"DB_PORT" default:"5432"`
		User      string        `envconfig:"DB_USER" default:"postgres"`
		Password  string        `envconfig:"DB_PASSWORD" default:""`
		Name      string        `envconfig:"DB_NAME" default:"invoicer"`
		MaxConns  int           `envconfig:"DB_MAX_CONNS" default:"25"`
		TxTimeout time.Duration `envconfig:"DB_TX_TIMEOUT" default:"10s"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Auth struct {
		// JWTSecret disables authentication when empty.
		JWTSecret string `envconfig:"JWT_SECRET"`
		Issuer    string `envconfig:"JWT_ISSUER" default:"invoicer"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	}

	Invoice struct {
		DefaultDueDays int             `envconfig:"INVOICE_DEFAULT_DUE_DAYS" default:"30"`
		DefaultTax     decimal.Decimal `envconfig:"INVOICE_DEFAULT_TAX" default:"0"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// Logger builds the process logger from the App log settings.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.App.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	switch cfg.App.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.App.Storage)
	}

	if cfg.Invoice.DefaultDueDays < 0 {
		return nil, fmt.Errorf("INVOICE_DEFAULT_DUE_DAYS must not be negative")
	}

	return &cfg, nil
}
