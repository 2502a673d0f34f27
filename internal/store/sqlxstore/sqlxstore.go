// Package sqlxstore provides store drivers built on sqlx: "postgres" (lib/pq)
// and "sqlite" (modernc.org/sqlite). Both share one set of repositories;
// queries are written with ? placeholders and rebound per driver.
package sqlxstore

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/config"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
	"github.com/jensholdgaard/consignment-pricing/internal/store/migrations"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	store.Register("postgres", openPostgres)
	store.Register("sqlite", openSQLite)
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := ConnectPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, migrations.Postgres); err != nil {
		db.Close()
		return nil, err
	}
	return NewRepositories(db, clk), nil
}

func openSQLite(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := ConnectSQLite(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	return NewRepositories(db, clk), nil
}

// NewRepositories wires the sqlx repositories around an open connection.
func NewRepositories(db *sqlx.DB, clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Prices:   NewPriceView(db, clk),
		Listings: NewListingRepo(db, clk),
		Events:   NewEventStore(db, clk),
		Closer:   store.CloserFunc(db.Close),
		Ping:     db.PingContext,
	}
}

// ConnectPostgres opens and verifies a Postgres connection with OTEL instrumentation.
func ConnectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	sqlDB, err := otelsql.Open("postgres", cfg.DSN(),
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Keep the "postgres" name so sqlx rebinds placeholders to $N.
	db := sqlx.NewDb(sqlDB, "postgres")
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// ConnectSQLite opens a sqlite database at path and applies the schema.
func ConnectSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	sqlDB, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	db := sqlx.NewDb(sqlDB, "sqlite")
	// An in-memory database lives only as long as its connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if err := Migrate(ctx, db, migrations.SQLite); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies an idempotent schema script.
func Migrate(ctx context.Context, db *sqlx.DB, schema string) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
