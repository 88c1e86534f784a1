package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wonny/aegis-screener/internal/api/handlers"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/redis"
)

// RunLimiter decides whether a caller may start another pattern run
type RunLimiter interface {
	Allow(ctx context.Context, caller string) (bool, error)
}

// localLimiter is a per-caller token bucket held in process memory
type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLocalLimiter allows perSecond runs per caller with the given burst
func NewLocalLimiter(perSecond, burst int) RunLimiter {
	if perSecond < 1 {
		perSecond = 1
	}
	if burst < 1 {
		burst = perSecond
	}
	return &localLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *localLimiter) Allow(_ context.Context, caller string) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[caller]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[caller] = lim
	}
	l.mu.Unlock()

	return lim.Allow(), nil
}

// redisLimiter shares the run budget across API replicas
type redisLimiter struct {
	limiter   *redis.RateLimiter
	perSecond int
}

// NewRedisLimiter allows perSecond runs per caller in a sliding one second window
func NewRedisLimiter(limiter *redis.RateLimiter, perSecond int) RunLimiter {
	return &redisLimiter{limiter: limiter, perSecond: perSecond}
}

func (l *redisLimiter) Allow(ctx context.Context, caller string) (bool, error) {
	allowed, _, err := l.limiter.Allow(ctx, redis.PatternRunRateLimit(caller, l.perSecond))
	return allowed, err
}

// throttleMiddleware rejects callers over their run budget with 429.
// Limiter errors fail open.
func throttleMiddleware(limiter RunLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := callerKey(r)

			allowed, err := limiter.Allow(r.Context(), caller)
			if err != nil {
				log.WithError(err).WithField("caller", caller).Warn("Run limiter unavailable, allowing request")
				allowed = true
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				handlers.RespondError(w, http.StatusTooManyRequests, handlers.CodeRateLimited, "too many pattern runs, retry shortly")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerKey identifies the client: first X-Forwarded-For hop, else the remote host
func callerKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
