// Package watcher periodically recomputes listing badges and notifies sellers
// whose badge changed since the last pass. Only the elected leader runs it.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/event"
	"github.com/jensholdgaard/consignment-pricing/internal/notify"
	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

const instrumentationName = "github.com/jensholdgaard/consignment-pricing/internal/watcher"

// Resolver resolves market prices for a seller's listings. The i-th result
// belongs to listings[i].
type Resolver interface {
	ResolveEach(ctx context.Context, userID string, listings []store.Listing) []*pricing.MarketPrice
}

// BadgeStore remembers the last badge per listing.
type BadgeStore interface {
	Get(ctx context.Context, listingID string) (pricing.Kind, bool, error)
	Set(ctx context.Context, listingID string, kind pricing.Kind) error
}

// ActiveLister lists every active listing.
type ActiveLister interface {
	ListActive(ctx context.Context) ([]store.Listing, error)
}

// Stats summarizes one pass.
type Stats struct {
	Sellers  int
	Checked  int
	Changed  int
	Failures int
}

// Watcher detects badge changes.
type Watcher struct {
	listings  ActiveLister
	resolver  Resolver
	badges    BadgeStore
	events    event.Store
	publisher notify.Publisher
	interval  time.Duration

	logger  *slog.Logger
	tracer  trace.Tracer
	clock   clock.Clock
	changes metric.Int64Counter
}

// New creates a Watcher that runs every interval.
func New(
	listings ActiveLister,
	resolver Resolver,
	badges BadgeStore,
	events event.Store,
	publisher notify.Publisher,
	interval time.Duration,
	logger *slog.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	clk clock.Clock,
) *Watcher {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	changes, err := mp.Meter(instrumentationName).Int64Counter("watcher.badge.changes",
		metric.WithDescription("Listing badge transitions detected by the watcher."),
	)
	if err != nil {
		logger.Warn("creating badge change counter", slog.Any("error", err))
		changes = noop.Int64Counter{}
	}

	return &Watcher{
		listings:  listings,
		resolver:  resolver,
		badges:    badges,
		events:    events,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		tracer:    tp.Tracer(instrumentationName),
		clock:     clk,
		changes:   changes,
	}
}

// Run executes a pass immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.InfoContext(ctx, "badge watcher started", slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "badge watcher pass failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "badge watcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce checks every active listing once. A listing seen for the first time
// has its badge recorded without a notification.
func (w *Watcher) RunOnce(ctx context.Context) (Stats, error) {
	ctx, span := w.tracer.Start(ctx, "Watcher.RunOnce")
	defer span.End()

	active, err := w.listings.ListActive(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("listing active listings: %w", err)
	}

	bySeller := make(map[string][]store.Listing)
	var sellers []string
	for _, l := range active {
		if _, ok := bySeller[l.UserID]; !ok {
			sellers = append(sellers, l.UserID)
		}
		bySeller[l.UserID] = append(bySeller[l.UserID], l)
	}

	stats := Stats{Sellers: len(sellers)}
	for _, seller := range sellers {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		w.checkSeller(ctx, seller, bySeller[seller], &stats)
	}

	span.SetAttributes(
		attribute.Int("sellers", stats.Sellers),
		attribute.Int("checked", stats.Checked),
		attribute.Int("changed", stats.Changed),
	)
	w.logger.InfoContext(ctx, "badge watcher pass complete",
		slog.Int("sellers", stats.Sellers),
		slog.Int("checked", stats.Checked),
		slog.Int("changed", stats.Changed),
		slog.Int("failures", stats.Failures),
	)
	return stats, nil
}

func (w *Watcher) checkSeller(ctx context.Context, userID string, listings []store.Listing, stats *Stats) {
	markets := w.resolver.ResolveEach(ctx, userID, listings)

	for i, l := range listings {
		stats.Checked++
		mp := markets[i]
		badge := pricing.Classify(l.Price, mp)

		prev, seen, err := w.badges.Get(ctx, l.ID)
		if err != nil {
			stats.Failures++
			w.logger.WarnContext(ctx, "failed to read last badge",
				slog.String("listing_id", l.ID),
				slog.Any("error", err),
			)
			continue
		}
		if seen && prev == badge.Kind {
			continue
		}

		if err := w.badges.Set(ctx, l.ID, badge.Kind); err != nil {
			stats.Failures++
			w.logger.WarnContext(ctx, "failed to store badge",
				slog.String("listing_id", l.ID),
				slog.Any("error", err),
			)
			continue
		}
		if !seen {
			continue
		}

		stats.Changed++
		w.changes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(prev)),
			attribute.String("to", string(badge.Kind)),
		))
		w.recordChange(ctx, l, prev, badge, mp, stats)
	}
}

func (w *Watcher) recordChange(ctx context.Context, l store.Listing, from pricing.Kind, badge pricing.Badge, mp *pricing.MarketPrice, stats *Stats) {
	n := notify.BadgeChanged{
		ListingID:   l.ID,
		UserID:      l.UserID,
		ProductID:   l.ProductID,
		Size:        l.Size,
		From:        from,
		To:          badge.Kind,
		Price:       l.Price,
		Description: badge.Description,
		OccurredAt:  w.clock.Now().UTC(),
	}
	if mp != nil {
		final := mp.FinalPrice
		n.MarketPrice = &final
	}

	data, _ := json.Marshal(event.BadgeChangedData{
		UserID:      n.UserID,
		ProductID:   n.ProductID,
		Size:        n.Size,
		From:        string(n.From),
		To:          string(n.To),
		Price:       n.Price,
		MarketPrice: n.MarketPrice,
	})
	evt := event.Event{
		AggregateID: l.ID,
		Type:        event.ListingBadgeChanged,
		Data:        data,
	}
	if err := w.events.Append(ctx, evt); err != nil {
		stats.Failures++
		w.logger.ErrorContext(ctx, "failed to append badge changed event", slog.Any("error", err))
	}

	if err := w.publisher.PublishBadgeChanged(ctx, n); err != nil {
		stats.Failures++
		w.logger.ErrorContext(ctx, "failed to publish badge change",
			slog.String("listing_id", l.ID),
			slog.Any("error", err),
		)
	}

	w.logger.InfoContext(ctx, "listing badge changed",
		slog.String("listing_id", l.ID),
		slog.String("user_id", l.UserID),
		slog.String("from", string(from)),
		slog.String("to", string(badge.Kind)),
	)
}
