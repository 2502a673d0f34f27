package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

const listingColumns = `id, product_id, size, price::text, user_id, status, created_at, expires_at`

// ListingRepo implements store.ListingRepository with pgx.
type ListingRepo struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(pool *pgxpool.Pool, clk clock.Clock) *ListingRepo {
	return &ListingRepo{pool: pool, clock: clk}
}

func (r *ListingRepo) Create(ctx context.Context, l *store.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.clock.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_products (id, product_id, size, price, user_id, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		l.ID, l.ProductID, l.Size, l.Price.String(), l.UserID, l.Status, l.CreatedAt, l.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) GetByID(ctx context.Context, id string) (*store.Listing, error) {
	l, err := scanListing(r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM user_products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing: %w", err)
	}
	return l, nil
}

func (r *ListingRepo) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_products WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *ListingRepo) ListByUser(ctx context.Context, userID string) ([]store.Listing, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM user_products
		 WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY created_at DESC`, userID, r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("listing user listings: %w", err)
	}
	return collectListings(rows)
}

func (r *ListingRepo) ListActive(ctx context.Context) ([]store.Listing, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM user_products
		 WHERE expires_at IS NULL OR expires_at > $1
		 ORDER BY user_id, created_at ASC`, r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("listing active listings: %w", err)
	}
	return collectListings(rows)
}

func (r *ListingRepo) EarliestActiveAt(ctx context.Context, productID, size string, price decimal.Decimal) (*store.Listing, error) {
	l, err := scanListing(r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM user_products
		 WHERE product_id = $1 AND size = $2 AND price = $3::numeric
		   AND (expires_at IS NULL OR expires_at > $4)
		 ORDER BY created_at ASC LIMIT 1`,
		productID, size, price.String(), r.clock.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding earliest listing at price: %w", err)
	}
	return l, nil
}

func scanListing(row pgx.Row) (*store.Listing, error) {
	var l store.Listing
	var price string
	if err := row.Scan(&l.ID, &l.ProductID, &l.Size, &price, &l.UserID, &l.Status, &l.CreatedAt, &l.ExpiresAt); err != nil {
		return nil, err
	}
	p, err := parsePrice(price)
	if err != nil {
		return nil, err
	}
	l.Price = p
	return &l, nil
}

func collectListings(rows pgx.Rows) ([]store.Listing, error) {
	defer rows.Close()

	var listings []store.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing row: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing price %q: %w", s, err)
	}
	return d, nil
}
