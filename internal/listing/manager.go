package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/event"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

// ErrInvalidListing is returned when a listing request fails validation.
var ErrInvalidListing = errors.New("invalid listing")

// Request describes a new listing.
type Request struct {
	UserID    string
	ProductID string
	Size      string
	Price     decimal.Decimal
	// TTL sets the expiry relative to now. Zero means the listing never expires.
	TTL time.Duration
}

func (r Request) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidListing)
	case r.ProductID == "":
		return fmt.Errorf("%w: product id is required", ErrInvalidListing)
	case r.Size == "":
		return fmt.Errorf("%w: size is required", ErrInvalidListing)
	case !r.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidListing, r.Price)
	case r.TTL < 0:
		return fmt.Errorf("%w: ttl must not be negative", ErrInvalidListing)
	}
	return nil
}

// Manager handles the listing lifecycle.
type Manager struct {
	listings store.ListingRepository
	events   event.Store
	status   string
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewManager returns a new listing Manager. New listings are stamped with status.
func NewManager(listings store.ListingRepository, events event.Store, status string, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		listings: listings,
		events:   events,
		status:   status,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/consignment-pricing/internal/listing"),
		clock:    clk,
	}
}

// Create validates and stores a new listing. Prices are rounded to cents.
func (m *Manager) Create(ctx context.Context, req Request) (*store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(
			attribute.String("user_id", req.UserID),
			attribute.String("product_id", req.ProductID),
			attribute.String("size", req.Size),
		),
	)
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	now := m.clock.Now().UTC()
	l := &store.Listing{
		ProductID: req.ProductID,
		Size:      req.Size,
		Price:     req.Price.Round(2),
		UserID:    req.UserID,
		Status:    m.status,
		CreatedAt: now,
	}
	if req.TTL > 0 {
		exp := now.Add(req.TTL)
		l.ExpiresAt = &exp
	}
	if err := m.listings.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("creating listing: %w", err)
	}

	data, _ := json.Marshal(event.ListingCreatedData{
		UserID:    l.UserID,
		ProductID: l.ProductID,
		Size:      l.Size,
		Price:     l.Price,
	})
	evt := event.Event{
		AggregateID: l.ID,
		Type:        event.ListingCreated,
		Data:        data,
		Version:     1,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append listing created event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "listing created",
		slog.String("listing_id", l.ID),
		slog.String("product_id", l.ProductID),
		slog.String("size", l.Size),
		slog.String("price", l.Price.StringFixed(2)),
	)
	return l, nil
}

// Delete removes one of the user's own listings. Deleting another user's
// listing reports store.ErrNotFound.
func (m *Manager) Delete(ctx context.Context, userID, listingID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Delete",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("listing_id", listingID),
		),
	)
	defer span.End()

	if err := m.listings.Delete(ctx, listingID, userID); err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}

	data, _ := json.Marshal(event.ListingDeletedData{UserID: userID})
	evt := event.Event{
		AggregateID: listingID,
		Type:        event.ListingDeleted,
		Data:        data,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append listing deleted event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "listing deleted", slog.String("listing_id", listingID))
	return nil
}

// ListForUser returns the user's active listings, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListForUser")
	defer span.End()

	return m.listings.ListByUser(ctx, userID)
}

// ListActive returns every active listing.
func (m *Manager) ListActive(ctx context.Context) ([]store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListActive")
	defer span.End()

	return m.listings.ListActive(ctx)
}
