package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Pool selects one side of the price view.
type Pool int

const (
	// ConsignorPool holds rows listed by sellers (owner is set).
	ConsignorPool Pool = iota
	// EshopPool holds the store's own inventory (owner is NULL).
	EshopPool
)

func (p Pool) String() string {
	switch p {
	case ConsignorPool:
		return "consignor"
	case EshopPool:
		return "eshop"
	default:
		return "unknown"
	}
}

// PriceRow is a read-only projection of the product_prices view.
type PriceRow struct {
	ProductID   string          `db:"product_id"`
	Size        string          `db:"size"`
	FinalPrice  decimal.Decimal `db:"final_price"`
	FinalStatus string          `db:"final_status"`
	Owner       *string         `db:"owner"` // nil for eshop inventory
}

// PoolFilter narrows a price view lookup to a single pool of a variant.
type PoolFilter struct {
	ProductID string
	Size      string
	Statuses  []string
	Pool      Pool
	// ExcludeOwner drops rows owned by this user. Only meaningful for ConsignorPool.
	ExcludeOwner string
}

// Listing is a seller's active offer for a product variant.
type Listing struct {
	ID        string          `db:"id" json:"id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Size      string          `db:"size" json:"size"`
	Price     decimal.Decimal `db:"price" json:"price"`
	UserID    string          `db:"user_id" json:"user_id"`
	Status    string          `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
}

// Active reports whether the listing has not expired at now.
func (l Listing) Active(now time.Time) bool {
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// PriceView queries the combined consignor and eshop price pools.
type PriceView interface {
	// Lowest returns the cheapest eligible unexpired row for the filter, or
	// nil when the pool has no eligible row.
	Lowest(ctx context.Context, f PoolFilter) (*PriceRow, error)
}

// ListingRepository defines listing persistence operations.
type ListingRepository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id string) (*Listing, error)
	Delete(ctx context.Context, id, userID string) error
	// ListByUser returns the user's active listings, newest first.
	ListByUser(ctx context.Context, userID string) ([]Listing, error)
	// ListActive returns every active listing.
	ListActive(ctx context.Context) ([]Listing, error)
	// EarliestActiveAt returns the oldest active listing for the exact
	// variant and price, or nil when there is none.
	EarliestActiveAt(ctx context.Context, productID, size string, price decimal.Decimal) (*Listing, error)
}
