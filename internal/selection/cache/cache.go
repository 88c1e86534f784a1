// Package cache holds the result cache backends.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/config"
	"github.com/wonny/aegis-screener/pkg/database"
	"github.com/wonny/aegis-screener/pkg/redis"
)

// New builds the backend selected by PATTERN_CACHE_BACKEND
func New(backend string, db database.Querier, rc *redis.Client, retention time.Duration) (contracts.ResultCache, error) {
	switch backend {
	case config.CacheBackendPostgres:
		return NewPostgres(db), nil
	case config.CacheBackendRedis:
		if rc == nil || !rc.Enabled() {
			return nil, fmt.Errorf("redis cache backend requires REDIS_ENABLED=true")
		}
		return NewRedis(rc, retention), nil
	case config.CacheBackendMemory:
		return NewMemory(), nil
	case config.CacheBackendNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// Noop disables caching: every Get misses
type Noop struct{}

func (Noop) Get(context.Context, string) (*contracts.CachedRun, error) { return nil, nil }
func (Noop) Put(context.Context, *contracts.CachedRun) error           { return nil }
func (Noop) Invalidate(context.Context, string) error                  { return nil }
func (Noop) Prune(context.Context, time.Time) (int64, error)           { return 0, nil }
