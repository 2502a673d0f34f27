package sqlxstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

const listingColumns = `id, product_id, size, price, user_id, status, created_at, expires_at`

// ListingRepo implements store.ListingRepository with sqlx.
type ListingRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(db *sqlx.DB, clk clock.Clock) *ListingRepo {
	return &ListingRepo{db: db, clock: clk}
}

func (r *ListingRepo) Create(ctx context.Context, l *store.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.clock.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO user_products (`+listingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.ProductID, l.Size, l.Price, l.UserID, l.Status, l.CreatedAt, l.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) GetByID(ctx context.Context, id string) (*store.Listing, error) {
	var l store.Listing
	err := r.db.GetContext(ctx, &l, r.db.Rebind(
		`SELECT `+listingColumns+` FROM user_products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing: %w", err)
	}
	return &l, nil
}

func (r *ListingRepo) Delete(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM user_products WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("listing %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *ListingRepo) ListByUser(ctx context.Context, userID string) ([]store.Listing, error) {
	var listings []store.Listing
	err := r.db.SelectContext(ctx, &listings, r.db.Rebind(
		`SELECT `+listingColumns+` FROM user_products
		 WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY created_at DESC`), userID, r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("listing user listings: %w", err)
	}
	return listings, nil
}

func (r *ListingRepo) ListActive(ctx context.Context) ([]store.Listing, error) {
	var listings []store.Listing
	err := r.db.SelectContext(ctx, &listings, r.db.Rebind(
		`SELECT `+listingColumns+` FROM user_products
		 WHERE expires_at IS NULL OR expires_at > ?
		 ORDER BY user_id, created_at ASC`), r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("listing active listings: %w", err)
	}
	return listings, nil
}

func (r *ListingRepo) EarliestActiveAt(ctx context.Context, productID, size string, price decimal.Decimal) (*store.Listing, error) {
	var l store.Listing
	err := r.db.GetContext(ctx, &l, r.db.Rebind(
		`SELECT `+listingColumns+` FROM user_products
		 WHERE product_id = ? AND size = ? AND price = ?
		   AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY created_at ASC LIMIT 1`),
		productID, size, price, r.clock.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding earliest listing at price: %w", err)
	}
	return &l, nil
}
