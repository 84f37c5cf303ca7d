package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const popularKey = "memexpert:popular_ids"

// PopularCache holds the computed popular-meme ID list in Redis for a
// short TTL so the empty-query fallback doesn't re-run the visit
// aggregation on every request.
type PopularCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPopularCache creates a new PopularCache.
func NewPopularCache(rdb *redis.Client, ttl time.Duration) *PopularCache {
	return &PopularCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached ID list, or nil on a miss.
func (c *PopularCache) Get(ctx context.Context) ([]int32, error) {
	raw, err := c.rdb.Get(ctx, popularKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read popular cache: %w", err)
	}

	var ids []int32
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode popular cache: %w", err)
	}
	if ids == nil {
		ids = []int32{}
	}
	return ids, nil
}

// Set stores the ID list with the configured TTL.
func (c *PopularCache) Set(ctx context.Context, ids []int32) error {
	if ids == nil {
		ids = []int32{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode popular cache: %w", err)
	}
	if err := c.rdb.Set(ctx, popularKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write popular cache: %w", err)
	}
	return nil
}
