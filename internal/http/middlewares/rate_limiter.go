package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window per-key limiter. Good enough for the
// auth endpoints it guards; not meant as a general traffic shaper.
type RateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	limit     int
	buckets   map[string]*rateBucket
	lastSweep time.Time
}

type rateBucket struct {
	count     int
	windowEnd time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		window:    window,
		buckets:   make(map[string]*rateBucket),
		lastSweep: time.Now(),
	}
}

// allow reports whether the key may proceed. When denied it also returns
// how many seconds remain in the current window.
func (rl *RateLimiter) allow(key string, now time.Time) (ok bool, retryAfter int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweepLocked(now)

	b := rl.buckets[key]
	if b == nil || now.After(b.windowEnd) {
		rl.buckets[key] = &rateBucket{count: 1, windowEnd: now.Add(rl.window)}
		return true, 0
	}

	if b.count >= rl.limit {
		secs := int(time.Until(b.windowEnd).Seconds())
		if secs < 0 {
			secs = 0
		}
		return false, secs
	}

	b.count++
	return true, 0
}

// sweepLocked drops expired buckets so the map does not grow with every
// IP ever seen. Runs at most once per window.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	for key, b := range rl.buckets {
		if now.After(b.windowEnd) {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = clientIP(c)
		}

		ok, retryAfter := rl.allow(key, time.Now())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests. Please try again shortly.",
				},
			})
			return
		}

		c.Next()
	}
}

// for unauthenticated endpoints: limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// for authenticated endpoints: limit by userID when available
func KeyByUserOrIP(c *gin.Context) string {
	if id, ok := UserIDFromContext(c); ok && id != "" {
		return "user:" + id
	}
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		return host
	}
	return ip
}
