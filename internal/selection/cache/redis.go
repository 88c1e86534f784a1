package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/redis"
)

// Redis stores each cached run as one JSON value with a retention TTL.
// Expiry replaces pruning.
type Redis struct {
	cache     *redis.Cache
	retention time.Duration
}

var _ contracts.ResultCache = (*Redis)(nil)

// NewRedis creates a redis result cache
func NewRedis(client *redis.Client, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = redis.TTLWeekly
	}
	return &Redis{cache: redis.NewCache(client, "screener"), retention: retention}
}

func (c *Redis) Get(ctx context.Context, patternID string) (*contracts.CachedRun, error) {
	var run contracts.CachedRun
	found, err := c.cache.Get(ctx, redis.PatternResultsKey(patternID), &run)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contracts.ErrCacheUnavailable, err)
	}
	if !found || len(run.Entries) == 0 {
		return nil, nil
	}
	return &run, nil
}

// Put overwrites the key with a single SET, which replaces the run atomically
func (c *Redis) Put(ctx context.Context, run *contracts.CachedRun) error {
	if err := c.cache.Set(ctx, redis.PatternResultsKey(run.PatternID), run, c.retention); err != nil {
		return fmt.Errorf("%w: %w", contracts.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context, patternID string) error {
	if err := c.cache.Delete(ctx, redis.PatternResultsKey(patternID)); err != nil {
		return fmt.Errorf("%w: %w", contracts.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *Redis) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}
