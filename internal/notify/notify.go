package notify

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
)

// BadgeChanged is published when a listing's badge differs from the one last
// shown to its seller.
type BadgeChanged struct {
	ListingID   string           `json:"listing_id"`
	UserID      string           `json:"user_id"`
	ProductID   string           `json:"product_id"`
	Size        string           `json:"size"`
	From        pricing.Kind     `json:"from,omitempty"`
	To          pricing.Kind     `json:"to"`
	Price       decimal.Decimal  `json:"price"`
	MarketPrice *decimal.Decimal `json:"market_price,omitempty"`
	Description string           `json:"description"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// Publisher delivers notifications to an outbound channel.
type Publisher interface {
	PublishBadgeChanged(ctx context.Context, n BadgeChanged) error
	Close() error
}

// Multi fans a notification out to every publisher.
type Multi []Publisher

// PublishBadgeChanged publishes to all publishers and joins their errors.
func (m Multi) PublishBadgeChanged(ctx context.Context, n BadgeChanged) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishBadgeChanged(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all publishers.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) PublishBadgeChanged(context.Context, BadgeChanged) error { return nil }
func (Nop) Close() error { return nil }
