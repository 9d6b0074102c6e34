package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const stockVersionKey = "inventory:stock:version"

// StockCache keeps short-lived stock summaries in Redis. Keys carry a version
// suffix; invalidation bumps the version instead of deleting entries.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewStockCache instantiates the cache helper.
func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	return &StockCache{client: client, ttl: ttl}
}

func (c *StockCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, stockVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, stockVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Fetch loads a cached summary or populates it using the loader. Concurrent
// fetches for the same product share one loader call.
func (c *StockCache) Fetch(ctx context.Context, productID int64, loader func(context.Context) (StockSummary, error)) (StockSummary, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("inventory:stock:%d:%d", productID, ver)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached StockSummary
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	result := c.group.DoChan(key, func() (any, error) {
		summary, err := loader(ctx)
		if err != nil {
			return StockSummary{}, err
		}
		if raw, err := json.Marshal(summary); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return summary, nil
	})
	select {
	case <-ctx.Done():
		return StockSummary{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return StockSummary{}, res.Err
		}
		return res.Val.(StockSummary), nil
	}
}

// Invalidate bumps the cache version so stale summaries expire immediately.
func (c *StockCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, stockVersionKey).Err()
}
