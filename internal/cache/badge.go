package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jensholdgaard/consignment-pricing/internal/config"
	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
)

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// BadgeStore remembers the last badge shown for each listing.
type BadgeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBadgeStore returns a BadgeStore whose entries expire after ttl.
func NewBadgeStore(client *redis.Client, ttl time.Duration) *BadgeStore {
	return &BadgeStore{client: client, ttl: ttl}
}

func badgeKey(listingID string) string {
	return "badge:" + listingID
}

// Get returns the last stored badge kind. ok is false when none is stored.
func (s *BadgeStore) Get(ctx context.Context, listingID string) (kind pricing.Kind, ok bool, err error) {
	val, err := s.client.Get(ctx, badgeKey(listingID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting badge for listing %s: %w", listingID, err)
	}
	return pricing.Kind(val), true, nil
}

// Set stores the badge kind for a listing, refreshing its TTL.
func (s *BadgeStore) Set(ctx context.Context, listingID string, kind pricing.Kind) error {
	if err := s.client.Set(ctx, badgeKey(listingID), string(kind), s.ttl).Err(); err != nil {
		return fmt.Errorf("setting badge for listing %s: %w", listingID, err)
	}
	return nil
}

// Delete forgets the badge of a listing.
func (s *BadgeStore) Delete(ctx context.Context, listingID string) error {
	if err := s.client.Del(ctx, badgeKey(listingID)).Err(); err != nil {
		return fmt.Errorf("deleting badge for listing %s: %w", listingID, err)
	}
	return nil
}
