// Package pgxstore provides a store.Driver backed by a jackc/pgx connection
// pool. It uses the same Postgres schema as the sqlx "postgres" driver but
// talks the native pgx protocol instead of going through database/sql.
package pgxstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/config"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
	"github.com/jensholdgaard/consignment-pricing/internal/store/migrations"
)

func init() {
	store.Register("pgx", openPgx)
}

func openPgx(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	pool, err := Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewRepositories(pool, clk), nil
}

// NewRepositories wires the pgx repositories around a pool.
func NewRepositories(pool *pgxpool.Pool, clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Prices:   NewPriceView(pool, clk),
		Listings: NewListingRepo(pool, clk),
		Events:   NewEventStore(pool, clk),
		Closer: store.CloserFunc(func() error {
			pool.Close()
			return nil
		}),
		Ping: pool.Ping,
	}
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Migrate applies the shared Postgres schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, migrations.Postgres); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
