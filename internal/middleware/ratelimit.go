// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/courseware/internal/core"
)

const (
	backendRedis = "redis"
	backendLocal = "local"
)

// RateLimitObserver is told about every rejected request.
type RateLimitObserver interface {
	RateLimited(limiter, backend string)
}

type RateLimitConfig struct {
	// Name labels logs and metrics. Defaults to "global".
	Name       string
	Limit      redis_rate.Limit
	KeyFunc    func(*http.Request) string
	FailOpen   bool
	BypassFunc func(*http.Request) bool
	Observer   RateLimitObserver
}

// RateLimiter counts requests in Redis and falls back to an in-process
// token bucket per key while Redis is unreachable.
type RateLimiter struct {
	limiter  *redis_rate.Limiter
	fallback *localLimiter
	config   RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.Name == "" {
		cfg.Name = "global"
	}

	return &RateLimiter{
		limiter:  redis_rate.NewLimiter(rdb),
		fallback: newLocalLimiter(cfg.Limit),
		config:   cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.BypassFunc != nil && rl.config.BypassFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.config.KeyFunc(r)
		res, backend, err := rl.allow(r.Context(), key)
		if err != nil {
			if rl.config.FailOpen {
				slog.WarnContext(r.Context(), "rate limiter unavailable, allowing",
					"limiter", rl.config.Name,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			core.JSONError(w, core.NewAppError(
				err,
				"rate limiter unavailable",
				http.StatusServiceUnavailable,
				"SERVICE_UNAVAILABLE",
			))
			return
		}

		setRateLimitHeaders(w, res, rl.config.Limit)

		if res.Allowed == 0 {
			if rl.config.Observer != nil {
				rl.config.Observer.RateLimited(rl.config.Name, backend)
			}
			writeRateLimitExceeded(w, res)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(
	ctx context.Context,
	key string,
) (*redis_rate.Result, string, error) {
	res, err := rl.limiter.Allow(ctx, key, rl.config.Limit)
	if err == nil {
		return res, backendRedis, nil
	}
	if ctx.Err() != nil {
		return nil, "", fmt.Errorf("rate limit %s: %w", rl.config.Name, ctx.Err())
	}

	slog.DebugContext(ctx, "rate limiter using local fallback",
		"limiter", rl.config.Name,
		"error", err,
	)
	return rl.fallback.allow(key), backendLocal, nil
}

// KeyByIP trusts the last X-Forwarded-For hop, which is the one appended
// by our own proxy.
func KeyByIP(r *http.Request) string {
	return "ratelimit:ip:" + clientIP(r)
}

// KeyByIPAndEndpoint scopes anonymous endpoints such as registration and
// code verification so guessing against one does not spend another's budget.
func KeyByIPAndEndpoint(r *http.Request) string {
	return fmt.Sprintf(
		"%s:endpoint:%s",
		KeyByIP(r),
		normalizeEndpoint(r.URL.Path),
	)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func normalizeEndpoint(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if isUUID(part) || isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	return s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-'
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func setRateLimitHeaders(
	w http.ResponseWriter,
	res *redis_rate.Result,
	limit redis_rate.Limit,
) {
	h := w.Header()

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(
		time.Now().Add(res.ResetAfter).Unix(), 10))

	h.Set("RateLimit-Policy",
		fmt.Sprintf(`%d;w=%d`, limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit",
		fmt.Sprintf(`%d;t=%d`, res.Remaining, int(res.ResetAfter.Seconds())))
}

func writeRateLimitExceeded(w http.ResponseWriter, res *redis_rate.Result) {
	retryAfter := max(int(res.RetryAfter.Seconds()), 1)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	core.JSONError(w, core.NewAppError(
		nil,
		fmt.Sprintf("Too many attempts. Retry after %d seconds.", retryAfter),
		http.StatusTooManyRequests,
		"RATE_LIMITED",
	))
}

const (
	localSweepInterval = 5 * time.Minute
	localEntryTTL      = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

type localLimiter struct {
	limit     redis_rate.Limit
	perSec    rate.Limit
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSwept time.Time
}

func newLocalLimiter(limit redis_rate.Limit) *localLimiter {
	perSec := rate.Inf
	if limit.Period > 0 && limit.Rate > 0 {
		perSec = rate.Limit(float64(limit.Rate) / limit.Period.Seconds())
	}
	return &localLimiter{
		limit:     limit,
		perSec:    perSec,
		buckets:   make(map[string]*bucket),
		lastSwept: time.Now(),
	}
}

func (l *localLimiter) allow(key string) *redis_rate.Result {
	now := time.Now()
	b := l.bucket(key, now)
	b.lastSeen.Store(now.Unix())

	allowed := b.limiter.AllowN(now, 1)
	interval := l.interval()

	res := &redis_rate.Result{
		Limit:      l.limit,
		Remaining:  max(int(b.limiter.TokensAt(now)), 0),
		RetryAfter: -1,
		ResetAfter: interval,
	}
	if allowed {
		res.Allowed = 1
	} else {
		res.RetryAfter = interval
	}
	return res
}

// bucket returns the limiter for key and sweeps idle entries at most once
// per localSweepInterval.
func (l *localLimiter) bucket(key string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSwept) >= localSweepInterval {
		cutoff := now.Add(-localEntryTTL).Unix()
		for k, b := range l.buckets {
			if b.lastSeen.Load() < cutoff {
				delete(l.buckets, k)
			}
		}
		l.lastSwept = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.perSec, max(l.limit.Burst, 1))}
		l.buckets[key] = b
	}
	return b
}

func (l *localLimiter) interval() time.Duration {
	if l.perSec == rate.Inf || l.perSec <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.perSec))
}

func PerMinute(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: time.Minute,
	}
}
