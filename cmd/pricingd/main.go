package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jensholdgaard/consignment-pricing/internal/api"
	"github.com/jensholdgaard/consignment-pricing/internal/cache"
	"github.com/jensholdgaard/consignment-pricing/internal/clock"
	"github.com/jensholdgaard/consignment-pricing/internal/config"
	"github.com/jensholdgaard/consignment-pricing/internal/health"
	"github.com/jensholdgaard/consignment-pricing/internal/leader"
	"github.com/jensholdgaard/consignment-pricing/internal/listing"
	"github.com/jensholdgaard/consignment-pricing/internal/notify"
	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
	"github.com/jensholdgaard/consignment-pricing/internal/telemetry"
	"github.com/jensholdgaard/consignment-pricing/internal/watcher"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/consignment-pricing/internal/store/pgxstore"
	_ "github.com/jensholdgaard/consignment-pricing/internal/store/sqlxstore"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	resolver := pricing.NewResolver(repos.Prices, repos.Listings, cfg.Pricing, logger, tp.TracerProvider, tp.MeterProvider)
	listingMgr := listing.NewManager(repos.Listings, repos.Events, cfg.Pricing.ListingStatus, logger, tp.TracerProvider, clk)

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	srv := api.NewServer(listingMgr, resolver, api.NewAuthenticator(cfg.Auth.JWTSecret, clk), healthHandler, logger, tp.TracerProvider)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
			cancel()
		}
	}()

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "pricingd is running", slog.String("version", version))

	// The API serves on every replica; only the leader runs the watcher.
	if cfg.Watcher.Enabled {
		runWatcher(ctx, cfg, repos, resolver, listingMgr, healthHandler, logger, tp)
	} else {
		logger.InfoContext(ctx, "badge watcher disabled by configuration")
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

// runWatcher blocks running the badge watcher while this replica leads. When
// its Redis cache or notification sinks are unavailable the watcher stays off
// and the API keeps serving.
func runWatcher(
	ctx context.Context,
	cfg *config.Config,
	repos *store.Repositories,
	resolver *pricing.Resolver,
	listings *listing.Manager,
	hh *health.Handler,
	logger *slog.Logger,
	tp *telemetry.Provider,
) {
	w, closeWatcher, err := newWatcher(ctx, cfg, repos, resolver, listings, hh, logger, tp)
	if err != nil {
		logger.ErrorContext(ctx, "badge watcher disabled", slog.Any("error", err))
		return
	}
	defer closeWatcher()

	if err := leader.RunWhenLeader(ctx, cfg.LeaderElection, logger, w.Run); err != nil {
		logger.ErrorContext(ctx, "leader election failed, badge watcher stopped", slog.Any("error", err))
	}
}

// newWatcher connects the badge cache and notification sinks. The returned
// func releases them.
func newWatcher(
	ctx context.Context,
	cfg *config.Config,
	repos *store.Repositories,
	resolver *pricing.Resolver,
	listings *listing.Manager,
	hh *health.Handler,
	logger *slog.Logger,
	tp *telemetry.Provider,
) (*watcher.Watcher, func(), error) {
	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	hh.AddChecker(health.Redis(rdb, true))

	publisher, err := newPublisher(cfg.Notify)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("creating publishers: %w", err)
	}

	w := watcher.New(
		listings,
		resolver,
		cache.NewBadgeStore(rdb, cfg.Redis.BadgeTTL),
		repos.Events,
		publisher,
		cfg.Watcher.Interval,
		logger,
		tp.TracerProvider,
		tp.MeterProvider,
		clock.Real{},
	)

	closeFn := func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Error("closing publishers", slog.Any("error", closeErr))
		}
		if closeErr := rdb.Close(); closeErr != nil {
			logger.Error("closing redis", slog.Any("error", closeErr))
		}
	}
	return w, closeFn, nil
}

func newPublisher(cfg config.NotifyConfig) (notify.Publisher, error) {
	var sinks notify.Multi
	if cfg.AMQPURL != "" {
		p, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.Queue)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, p)
	}
	if cfg.DiscordWebhookID != "" {
		p, err := notify.NewDiscordPublisher(cfg.DiscordWebhookID, cfg.DiscordWebhookToken)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, p)
	}
	if len(sinks) == 0 {
		return notify.Nop{}, nil
	}
	return sinks, nil
}
