package event

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies an event kind.
type Type string

const (
	ListingCreated      Type = "listing.created"
	ListingDeleted      Type = "listing.deleted"
	ListingBadgeChanged Type = "listing.badge_changed"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ListingCreatedData is the payload for ListingCreated events.
type ListingCreatedData struct {
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Size      string          `json:"size"`
	Price     decimal.Decimal `json:"price"`
}

// ListingDeletedData is the payload for ListingDeleted events.
type ListingDeletedData struct {
	UserID string `json:"user_id"`
}

// BadgeChangedData is the payload for ListingBadgeChanged events.
type BadgeChangedData struct {
	UserID      string           `json:"user_id"`
	ProductID   string           `json:"product_id"`
	Size        string           `json:"size"`
	From        string           `json:"from,omitempty"`
	To          string           `json:"to"`
	Price       decimal.Decimal  `json:"price"`
	MarketPrice *decimal.Decimal `json:"market_price,omitempty"`
}
