package pricing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/consignment-pricing/internal/config"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

const instrumentationName = "github.com/jensholdgaard/consignment-pricing/internal/pricing"

// Query identifies a seller's price for a product variant.
type Query struct {
	UserID    string
	ProductID string
	Size      string
	Price     decimal.Decimal
}

// Resolver computes market prices from the price pools. It never returns
// errors: a failing pool is logged and treated as empty.
type Resolver struct {
	prices   store.PriceView
	listings store.ListingRepository

	statuses        []string
	poolTimeout     time.Duration
	tieBreakTimeout time.Duration

	logger *slog.Logger
	tracer trace.Tracer

	poolFailures      metric.Int64Counter
	tieBreakFallbacks metric.Int64Counter
}

// NewResolver creates a Resolver. A nil MeterProvider disables metrics.
func NewResolver(
	prices store.PriceView,
	listings store.ListingRepository,
	cfg config.PricingConfig,
	logger *slog.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) *Resolver {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	r := &Resolver{
		prices:          prices,
		listings:        listings,
		statuses:        cfg.StockStatuses,
		poolTimeout:     cfg.PoolTimeout,
		tieBreakTimeout: cfg.TieBreakTimeout,
		logger:          logger,
		tracer:          tp.Tracer(instrumentationName),
	}
	if r.tieBreakTimeout <= 0 {
		r.tieBreakTimeout = r.poolTimeout
	}

	var err error
	if r.poolFailures, err = meter.Int64Counter("pricing.pool.failures",
		metric.WithDescription("Price pool queries that failed or timed out."),
	); err != nil {
		logger.Warn("creating pool failure counter", slog.Any("error", err))
		r.poolFailures = noop.Int64Counter{}
	}
	if r.tieBreakFallbacks, err = meter.Int64Counter("pricing.tiebreak.fallbacks",
		metric.WithDescription("First-in-line lookups that fell back to the owner heuristic."),
	); err != nil {
		logger.Warn("creating tie-break fallback counter", slog.Any("error", err))
		r.tieBreakFallbacks = noop.Int64Counter{}
	}
	return r
}

type rowResult struct {
	row *store.PriceRow
	err error
}

// Resolve returns the market price for q, or nil when neither pool has an
// eligible row.
func (r *Resolver) Resolve(ctx context.Context, q Query) *MarketPrice {
	ctx, span := r.tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(
			attribute.String("product_id", q.ProductID),
			attribute.String("size", q.Size),
			attribute.String("user_id", q.UserID),
		),
	)
	defer span.End()

	var (
		wg                             sync.WaitGroup
		including, excluding, eshopRow rowResult
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		including = r.lowest(ctx, q, store.ConsignorPool, "")
	}()
	go func() {
		defer wg.Done()
		excluding = r.lowest(ctx, q, store.ConsignorPool, q.UserID)
	}()
	go func() {
		defer wg.Done()
		eshopRow = r.lowest(ctx, q, store.EshopPool, "")
	}()
	wg.Wait()

	winner, ok := DecideWinner(including.row, eshopRow.row, q.UserID)
	if !ok {
		span.SetAttributes(attribute.Bool("market", false))
		return nil
	}

	mp := &MarketPrice{
		FinalPrice:           winner.Price,
		Owner:                winner.Owner,
		LowestConsignorPrice: priceOf(excluding),
		LowestEshopPrice:     priceOf(eshopRow),
		IsLowestEshop:        winner.IsEshop(),
		IsUserFirstInLine:    winner.OwnedBy(q.UserID),
	}

	if mp.LowestConsignorPrice != nil &&
		Equal(q.Price, *mp.LowestConsignorPrice) &&
		Equal(q.Price, winner.Price) {
		mp.IsUserFirstInLine = r.firstInLine(ctx, q, winner)
	}

	span.SetAttributes(
		attribute.Bool("market", true),
		attribute.String("final_price", mp.FinalPrice.String()),
		attribute.Bool("is_lowest_eshop", mp.IsLowestEshop),
		attribute.Bool("first_in_line", mp.IsUserFirstInLine),
	)
	return mp
}

func (r *Resolver) lowest(ctx context.Context, q Query, pool store.Pool, excludeOwner string) rowResult {
	ctx, cancel := context.WithTimeout(ctx, r.poolTimeout)
	defer cancel()

	row, err := r.prices.Lowest(ctx, store.PoolFilter{
		ProductID:    q.ProductID,
		Size:         q.Size,
		Statuses:     r.statuses,
		Pool:         pool,
		ExcludeOwner: excludeOwner,
	})
	if err != nil {
		r.poolFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("pool", pool.String())))
		r.logger.WarnContext(ctx, "price pool query failed",
			slog.String("pool", pool.String()),
			slog.Bool("excluding_self", excludeOwner != ""),
			slog.String("product_id", q.ProductID),
			slog.String("size", q.Size),
			slog.Any("error", err),
		)
		return rowResult{err: err}
	}
	return rowResult{row: row}
}

// firstInLine reports whether the user's listing is the oldest active one at
// the tied price. Lookup failures degrade to the winner's ownership.
func (r *Resolver) firstInLine(ctx context.Context, q Query, winner Winner) bool {
	ctx, cancel := context.WithTimeout(ctx, r.tieBreakTimeout)
	defer cancel()

	earliest, err := r.listings.EarliestActiveAt(ctx, q.ProductID, q.Size, q.Price)
	if err != nil {
		r.tieBreakFallbacks.Add(ctx, 1)
		r.logger.WarnContext(ctx, "first-in-line lookup failed, using owner heuristic",
			slog.String("product_id", q.ProductID),
			slog.String("size", q.Size),
			slog.Any("error", err),
		)
		return winner.OwnedBy(q.UserID)
	}
	if earliest == nil {
		return winner.OwnedBy(q.UserID)
	}
	return earliest.UserID == q.UserID
}

// ResolveAll resolves every listing concurrently and returns the results keyed
// by Key. Listings sharing a variant overwrite each other in completion order.
// Variants without a market map to nil.
func (r *Resolver) ResolveAll(ctx context.Context, userID string, listings []store.Listing) map[string]*MarketPrice {
	ctx, span := r.tracer.Start(ctx, "Resolver.ResolveAll",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("listings", len(listings)),
		),
	)
	defer span.End()

	var mu sync.Mutex
	out := make(map[string]*MarketPrice, len(listings))
	r.resolveConcurrently(ctx, userID, listings, func(i int, mp *MarketPrice) {
		mu.Lock()
		out[Key(listings[i].ProductID, listings[i].Size)] = mp
		mu.Unlock()
	})
	return out
}

// ResolveEach resolves every listing concurrently against its own price.
// The i-th result belongs to listings[i] and is nil when it has no market.
func (r *Resolver) ResolveEach(ctx context.Context, userID string, listings []store.Listing) []*MarketPrice {
	ctx, span := r.tracer.Start(ctx, "Resolver.ResolveEach",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("listings", len(listings)),
		),
	)
	defer span.End()

	out := make([]*MarketPrice, len(listings))
	r.resolveConcurrently(ctx, userID, listings, func(i int, mp *MarketPrice) {
		out[i] = mp
	})
	return out
}

func (r *Resolver) resolveConcurrently(ctx context.Context, userID string, listings []store.Listing, done func(i int, mp *MarketPrice)) {
	var wg sync.WaitGroup
	for i, l := range listings {
		wg.Add(1)
		go func(i int, l store.Listing) {
			defer wg.Done()
			done(i, r.Resolve(ctx, Query{
				UserID:    userID,
				ProductID: l.ProductID,
				Size:      l.Size,
				Price:     l.Price,
			}))
		}(i, l)
	}
	wg.Wait()
}
