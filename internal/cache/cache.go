// Package cache keeps the latest snapshot of each fetcher in Redis so every
// replica can answer reads without re-fetching.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/web3-frozen/position-fetchers/internal/monitor"
)

const (
	keyPrefix  = "positions:snapshot:"
	DefaultTTL = 15 * time.Minute
)

// SnapshotCache stores JSON-encoded snapshots with a TTL.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a SnapshotCache backed by Redis.
func New(redisURL, password string, ttl time.Duration) (*SnapshotCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &SnapshotCache{rdb: rdb, ttl: ttl}, nil
}

// Close shuts down the Redis connection.
func (c *SnapshotCache) Close() error {
	return c.rdb.Close()
}

func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PutSnapshot replaces the cached snapshot of the fetcher.
func (c *SnapshotCache) PutSnapshot(ctx context.Context, snap *monitor.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.rdb.Set(ctx, keyPrefix+snap.Key(), data, c.ttl).Err()
}

// GetSnapshot returns the cached snapshot, or nil when none is cached.
func (c *SnapshotCache) GetSnapshot(ctx context.Context, key string) (*monitor.Snapshot, error) {
	data, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap monitor.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}
