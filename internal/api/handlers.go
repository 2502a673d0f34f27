package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/consignment-pricing/internal/listing"
	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

// Quote pairs a market price with the badge for a seller's price.
type Quote struct {
	ProductID   string               `json:"product_id"`
	Size        string               `json:"size"`
	Price       decimal.Decimal      `json:"price"`
	MarketPrice *pricing.MarketPrice `json:"market_price"`
	Badge       pricing.Badge        `json:"badge"`
}

// MarketPricesResponse maps "{product_id}-{size}" to a quote.
type MarketPricesResponse struct {
	MarketPrices map[string]Quote `json:"market_prices"`
}

// CreateListingRequest is the body of POST /v1/listings.
type CreateListingRequest struct {
	ProductID string          `json:"product_id"`
	Size      string          `json:"size"`
	Price     decimal.Decimal `json:"price"`
	// TTL is a Go duration string such as "720h". Empty means no expiry.
	TTL string `json:"ttl,omitempty"`
}

// CreateListingResponse returns the stored listing with its fresh quote.
type CreateListingResponse struct {
	Listing *store.Listing `json:"listing"`
	Quote   Quote          `json:"quote"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func quote(productID, size string, price decimal.Decimal, mp *pricing.MarketPrice) Quote {
	return Quote{
		ProductID:   productID,
		Size:        size,
		Price:       price,
		MarketPrice: mp,
		Badge:       pricing.Classify(price, mp),
	}
}

func (s *Server) handleMarketPrices(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "Server.MarketPrices")
	defer span.End()

	userID, _ := UserID(ctx)
	listings, err := s.listings.ListForUser(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing user listings", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return
	}

	// Each quote carries the market resolved for its own listing price. Later
	// listings of the same variant replace earlier ones in the keyed map.
	markets := s.resolver.ResolveEach(ctx, userID, listings)
	resp := MarketPricesResponse{MarketPrices: make(map[string]Quote, len(listings))}
	for i, l := range listings {
		resp.MarketPrices[pricing.Key(l.ProductID, l.Size)] = quote(l.ProductID, l.Size, l.Price, markets[i])
	}
	span.SetAttributes(attribute.Int("listings", len(listings)))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	size := chi.URLParam(r, "size")

	ctx, span := s.tracer.Start(r.Context(), "Server.Quote",
		trace.WithAttributes(
			attribute.String("product_id", productID),
			attribute.String("size", size),
		),
	)
	defer span.End()

	raw := r.URL.Query().Get("price")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "price query parameter is required")
		return
	}
	price, err := decimal.NewFromString(raw)
	if err != nil || !price.IsPositive() {
		writeError(w, http.StatusBadRequest, "price must be a positive decimal")
		return
	}

	userID, _ := UserID(ctx)
	mp := s.resolver.Resolve(ctx, pricing.Query{
		UserID:    userID,
		ProductID: productID,
		Size:      size,
		Price:     price,
	})
	writeJSON(w, http.StatusOK, quote(productID, size, price, mp))
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "Server.CreateListing")
	defer span.End()

	var body CreateListingRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var ttl time.Duration
	if body.TTL != "" {
		var err error
		if ttl, err = time.ParseDuration(body.TTL); err != nil {
			writeError(w, http.StatusBadRequest, "ttl must be a duration such as 720h")
			return
		}
	}

	userID, _ := UserID(ctx)
	l, err := s.listings.Create(ctx, listing.Request{
		UserID:    userID,
		ProductID: body.ProductID,
		Size:      body.Size,
		Price:     body.Price,
		TTL:       ttl,
	})
	switch {
	case errors.Is(err, listing.ErrInvalidListing):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.ErrorContext(ctx, "creating listing", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to create listing")
		return
	}

	mp := s.resolver.Resolve(ctx, pricing.Query{
		UserID:    userID,
		ProductID: l.ProductID,
		Size:      l.Size,
		Price:     l.Price,
	})
	writeJSON(w, http.StatusCreated, CreateListingResponse{
		Listing: l,
		Quote:   quote(l.ProductID, l.Size, l.Price, mp),
	})
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")
	ctx, span := s.tracer.Start(r.Context(), "Server.DeleteListing",
		trace.WithAttributes(attribute.String("listing_id", listingID)),
	)
	defer span.End()

	userID, _ := UserID(ctx)
	err := s.listings.Delete(ctx, userID, listingID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "listing not found")
	case err != nil:
		s.logger.ErrorContext(ctx, "deleting listing", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to delete listing")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
