package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Pattern engine
	Patterns PatternConfig

	// Upstream stores (signals, fundamentals)
	Upstream UpstreamConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool

	// Worker (cron specs with seconds, empty disables the job)
	CachePruneSchedule string
	CacheWarmSchedule  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PatternConfig holds pattern run and result cache settings
type PatternConfig struct {
	CacheBackend   string        // postgres, redis, memory, none
	CacheMaxAge    time.Duration // freshness window
	CacheRetention time.Duration // redis TTL, prune horizon
	DefaultLimit   int
	MaxLimit       int

	// binary: 조건 충족 = 100점, proportional: 범위 내 위치에 따라 가중
	FundamentalScoring string

	RunRateLimit float64 // requests per second
	RunBurst     int
}

// UpstreamConfig holds circuit breaker settings for the signal/fundamental stores
type UpstreamConfig struct {
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Cache backends
const (
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
	CacheBackendMemory   = "memory"
	CacheBackendNone     = "none"
)

// Fundamental scoring modes
const (
	ScoringBinary       = "binary"
	ScoringProportional = "proportional"
)

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Patterns: PatternConfig{
			CacheBackend:       getEnv("PATTERN_CACHE_BACKEND", CacheBackendPostgres),
			CacheMaxAge:        getEnvAsDuration("PATTERN_CACHE_MAX_AGE", "24h"),
			CacheRetention:     getEnvAsDuration("PATTERN_CACHE_RETENTION", "168h"),
			DefaultLimit:       getEnvAsInt("PATTERN_DEFAULT_LIMIT", 50),
			MaxLimit:           getEnvAsInt("PATTERN_MAX_LIMIT", 1000),
			FundamentalScoring: getEnv("PATTERN_FUNDAMENTAL_SCORING", ScoringBinary),
			RunRateLimit:       getEnvAsFloat("PATTERN_RUN_RATE_LIMIT", 5),
			RunBurst:           getEnvAsInt("PATTERN_RUN_BURST", 10),
		},

		Upstream: UpstreamConfig{
			BreakerFailures: uint32(getEnvAsInt("UPSTREAM_BREAKER_FAILURES", 5)),
			BreakerTimeout:  getEnvAsDuration("UPSTREAM_BREAKER_TIMEOUT", "30s"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),

		CachePruneSchedule: getEnv("CACHE_PRUNE_SCHEDULE", "0 0 * * * *"),
		CacheWarmSchedule:  getEnv("CACHE_WARM_SCHEDULE", "0 30 7 * * 1-5"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Patterns.CacheBackend {
	case CacheBackendPostgres, CacheBackendRedis, CacheBackendMemory, CacheBackendNone:
	default:
		return fmt.Errorf("PATTERN_CACHE_BACKEND must be one of: postgres, redis, memory, none")
	}

	if c.Patterns.CacheBackend == CacheBackendRedis && !c.Redis.Enabled {
		return fmt.Errorf("PATTERN_CACHE_BACKEND=redis requires REDIS_ENABLED=true")
	}

	switch c.Patterns.FundamentalScoring {
	case ScoringBinary, ScoringProportional:
	default:
		return fmt.Errorf("PATTERN_FUNDAMENTAL_SCORING must be one of: binary, proportional")
	}

	if c.Patterns.CacheMaxAge <= 0 {
		return fmt.Errorf("PATTERN_CACHE_MAX_AGE must be positive")
	}

	if c.Patterns.DefaultLimit <= 0 || c.Patterns.DefaultLimit > c.Patterns.MaxLimit {
		return fmt.Errorf("PATTERN_DEFAULT_LIMIT must be in (0, PATTERN_MAX_LIMIT]")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
