// Package api exposes market prices and listing management over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/consignment-pricing/internal/health"
	"github.com/jensholdgaard/consignment-pricing/internal/listing"
	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

// Listings is the listing lifecycle used by the handlers.
type Listings interface {
	Create(ctx context.Context, req listing.Request) (*store.Listing, error)
	Delete(ctx context.Context, userID, listingID string) error
	ListForUser(ctx context.Context, userID string) ([]store.Listing, error)
}

// MarketResolver resolves market prices.
type MarketResolver interface {
	Resolve(ctx context.Context, q pricing.Query) *pricing.MarketPrice
	ResolveEach(ctx context.Context, userID string, listings []store.Listing) []*pricing.MarketPrice
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	listings Listings
	resolver MarketResolver
	auth     *Authenticator
	health   *health.Handler
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewServer creates a Server.
func NewServer(listings Listings, resolver MarketResolver, auth *Authenticator, hh *health.Handler, logger *slog.Logger, tp trace.TracerProvider) *Server {
	return &Server{
		listings: listings,
		resolver: resolver,
		auth:     auth,
		health:   hh,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/consignment-pricing/internal/api"),
	}
}

// Routes returns the HTTP handler for all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health.LivenessHandler())
	r.Get("/readyz", s.health.ReadinessHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/market-prices", s.handleMarketPrices)
		r.Get("/products/{productID}/sizes/{size}/market-price", s.handleQuote)
		r.Post("/listings", s.handleCreateListing)
		r.Delete("/listings/{listingID}", s.handleDeleteListing)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
