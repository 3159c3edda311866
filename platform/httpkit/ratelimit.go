package httpkit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"leadgen_backend/platform/config"
	"leadgen_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// IPRateLimiter manages per-IP token-bucket limiters. It is the in-process
// second layer behind the shared Redis limiter and needs no external state.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewIPRateLimiter creates a new IP-based rate limiter.
func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		rate:  r,
		burst: burst,
		log:   log,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	limiter, exists := i.limiters.Load(ip)
	if !exists {
		newLimiter := rate.NewLimiter(i.rate, i.burst)
		i.limiters.Store(ip, newLimiter)
		return newLimiter
	}
	return limiter.(*rate.Limiter)
}

// RateLimit returns a middleware that rate limits by IP.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := i.getLimiter(ip)

		if !limiter.Allow() {
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// RedisRateLimiter is a fixed-window limiter shared across instances.
// Counters live in Redis under ratelimit:{client}:{window}; the window
// index is derived from the wall clock so all instances agree on it.
type RedisRateLimiter struct {
	rdb     *redis.Client
	limit   int
	window  time.Duration
	exempt  map[string]struct{}
	enabled bool
	log     *logger.Logger
}

// NewRedisRateLimiter creates a shared fixed-window rate limiter.
func NewRedisRateLimiter(rdb *redis.Client, cfg config.RateLimitConfig, log *logger.Logger) *RedisRateLimiter {
	exempt := make(map[string]struct{})
	for _, path := range cfg.GetRateLimitExemptPaths() {
		exempt[path] = struct{}{}
	}

	window := cfg.GetRateLimitWindow()
	if window <= 0 {
		window = time.Minute
	}

	return &RedisRateLimiter{
		rdb:     rdb,
		limit:   cfg.GetRateLimitRequests(),
		window:  window,
		exempt:  exempt,
		enabled: cfg.GetRateLimitEnabled(),
		log:     log,
	}
}

// RateLimit returns the middleware. Redis errors fail open: an unreachable
// limiter store must not take the intake path down with it.
func (r *RedisRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.enabled || r.rdb == nil {
			c.Next()
			return
		}
		if _, ok := r.exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		client := clientIdentifier(c)
		windowSecs := int64(r.window / time.Second)
		if windowSecs < 1 {
			windowSecs = 1
		}
		windowIdx := time.Now().Unix() / windowSecs
		key := fmt.Sprintf("ratelimit:%s:%d", client, windowIdx)

		ctx := c.Request.Context()
		count, err := r.rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			r.rdb.Expire(ctx, key, r.window)
		}

		reset := (windowIdx + 1) * windowSecs
		remaining := int64(r.limit) - count
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(r.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if count > int64(r.limit) {
			if r.log != nil {
				r.log.RateLimitExceeded(client, c.Request.URL.Path)
			}
			retryAfter := reset - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// clientIdentifier picks the most specific caller identity available:
// API key, then bearer token, then client IP.
func clientIdentifier(c *gin.Context) string {
	if apiKey := strings.TrimSpace(c.GetHeader("X-API-Key")); apiKey != "" {
		return "key:" + apiKey
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); token != "" {
			return "token:" + token
		}
	}
	return "ip:" + c.ClientIP()
}
