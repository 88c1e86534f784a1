package commands

import (
	"fmt"

	"github.com/wonny/aegis-screener/internal/api"
	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/data/repos"
	"github.com/wonny/aegis-screener/internal/patterns"
	"github.com/wonny/aegis-screener/internal/selection"
	"github.com/wonny/aegis-screener/internal/selection/cache"
	"github.com/wonny/aegis-screener/pkg/config"
	"github.com/wonny/aegis-screener/pkg/database"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/metrics"
	"github.com/wonny/aegis-screener/pkg/redis"
)

// app holds the wired dependencies shared by the commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	redis   *redis.Client
	metrics *metrics.Registry
	cache   contracts.ResultCache
	service *selection.Service
}

// newApp loads config and wires database → stores → cache → engine → service
// ⭐ SSOT: 의존성 조립은 여기서만
func newApp() (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to redis (disabled client when REDIS_ENABLED=false)
	rc, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	reg := metrics.NewRegistry()

	// 5. Upstream stores behind circuit breakers
	breakerCfg := repos.BreakerConfig{
		ConsecutiveFailures: cfg.Upstream.BreakerFailures,
		OpenTimeout:         cfg.Upstream.BreakerTimeout,
	}
	signals := repos.NewBreakerSignalStore(repos.NewSignalRepository(db.Pool), breakerCfg, log, reg)
	fundamentals := repos.NewBreakerFundamentalStore(repos.NewFundamentalRepository(db.Pool), breakerCfg, log, reg)

	// 6. Result cache
	resultCache, err := cache.New(cfg.Patterns.CacheBackend, db.Pool, rc, cfg.Patterns.CacheRetention)
	if err != nil {
		_ = rc.Close()
		db.Close()
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	// 7. Engine + service
	patternRepo := patterns.NewRepository(db.Pool)
	engine := selection.NewEngine(patternRepo, signals, fundamentals, resultCache, selection.EngineConfig{
		FreshnessWindow: cfg.Patterns.CacheMaxAge,
		MaxLimit:        cfg.Patterns.MaxLimit,
		Scoring:         selection.ScoringMode(cfg.Patterns.FundamentalScoring),
	}, log, reg)
	service := selection.NewService(patternRepo, resultCache, engine, cfg.Patterns.DefaultLimit, log, reg)

	log.WithFields(map[string]interface{}{
		"env":           cfg.Env,
		"cache_backend": cfg.Patterns.CacheBackend,
		"scoring":       cfg.Patterns.FundamentalScoring,
		"redis":         rc.Enabled(),
	}).Debug("Dependencies wired")

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		redis:   rc,
		metrics: reg,
		cache:   resultCache,
		service: service,
	}, nil
}

// runLimiter picks the shared redis limiter when redis is on, the in-process one otherwise
func (a *app) runLimiter() api.RunLimiter {
	perSecond := int(a.cfg.Patterns.RunRateLimit)
	if perSecond < 1 {
		perSecond = 1
	}
	if a.redis.Enabled() {
		return api.NewRedisLimiter(redis.NewRateLimiter(a.redis, "screener"), perSecond)
	}
	return api.NewLocalLimiter(perSecond, a.cfg.Patterns.RunBurst)
}

// Close releases redis and database connections
func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis client")
	}
	a.db.Close()
}
