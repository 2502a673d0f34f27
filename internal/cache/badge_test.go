package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/jensholdgaard/consignment-pricing/internal/cache"
	"github.com/jensholdgaard/consignment-pricing/internal/config"
	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
)

// newRedisConfig starts a Redis container and returns settings pointing at it.
func newRedisConfig(t *testing.T) config.RedisConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}

	uri, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parsing connection string %q: %v", uri, err)
	}
	return config.RedisConfig{Addr: opts.Addr, BadgeTTL: time.Hour}
}

func TestBadgeStore(t *testing.T) {
	cfg := newRedisConfig(t)
	ctx := context.Background()

	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	bs := cache.NewBadgeStore(client, cfg.BadgeTTL)

	if _, ok, err := bs.Get(ctx, "l1"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v; want not found", ok, err)
	}

	if err := bs.Set(ctx, "l1", pricing.KindLowest); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	kind, ok, err := bs.Get(ctx, "l1")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v; want found", ok, err)
	}
	if kind != pricing.KindLowest {
		t.Errorf("Get() = %q, want %q", kind, pricing.KindLowest)
	}

	ttl, err := client.TTL(ctx, "badge:l1").Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL = %s, want within (0, 1h]", ttl)
	}

	if err := bs.Set(ctx, "l1", pricing.KindTied); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if kind, _, _ := bs.Get(ctx, "l1"); kind != pricing.KindTied {
		t.Errorf("Get() after overwrite = %q, want %q", kind, pricing.KindTied)
	}

	if err := bs.Delete(ctx, "l1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := bs.Get(ctx, "l1"); ok {
		t.Error("Get() after Delete() found a badge")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := cache.NewRedisClient(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected error connecting to an unreachable redis")
	}
}
