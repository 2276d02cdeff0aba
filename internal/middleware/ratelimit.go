// ratelimit.go enforces per-client request limits keyed by user id when
// authenticated, falling back to client IP. With a Redis address configured
// the limits are shared across replicas via redis_rate's sliding-window GCRA;
// without one a per-process token bucket is used, which is fine for a single
// instance.
package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/thirtyx30/thirtyx30/internal/config"
)

// RateLimitMiddleware builds the limiter from configuration. Disabled config
// returns a pass-through handler.
func RateLimitMiddleware(cfg *config.RateLimitingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 120
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = perMinute
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter := redis_rate.NewLimiter(client)
		limit := redis_rate.Limit{Rate: perMinute, Burst: burst, Period: time.Minute}
		slog.Info("rate limiting via redis", "addr", cfg.RedisAddr, "per_minute", perMinute, "burst", burst)

		return func(c *gin.Context) {
			res, err := limiter.Allow(c.Request.Context(), "ratelimit:"+clientKey(c), limit)
			if err != nil {
				// Redis down: fail open, availability over throttling.
				slog.Warn("rate limiter unavailable", "error", err)
				c.Next()
				return
			}
			if res.Allowed == 0 {
				c.Header("Retry-After", res.RetryAfter.Round(time.Second).String())
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error": "rate limit exceeded",
				})
				return
			}
			c.Next()
		}
	}

	local := newLocalLimiter(perMinute, burst)
	return func(c *gin.Context) {
		if !local.allow(clientKey(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// clientKey prefers the authenticated user id so NAT'd users don't share a
// bucket; anonymous requests fall back to the client IP.
func clientKey(c *gin.Context) string {
	if id := UserID(c); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

// localLimiter is a token bucket per key with periodic pruning
type localLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	ratePerSec float64
	burst      float64
	lastPrune  time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func newLocalLimiter(perMinute, burst int) *localLimiter {
	return &localLimiter{
		buckets:    make(map[string]*bucket),
		ratePerSec: float64(perMinute) / 60.0,
		burst:      float64(burst),
		lastPrune:  time.Now(),
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastSeen: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens += elapsed * l.ratePerSec
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastSeen = now

	if now.Sub(l.lastPrune) > 10*time.Minute {
		for k, v := range l.buckets {
			if now.Sub(v.lastSeen) > 10*time.Minute {
				delete(l.buckets, k)
			}
		}
		l.lastPrune = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
