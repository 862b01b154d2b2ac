// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket limiter keyed by the
// authenticated subject or the client IP. Devices that retry ingestion after
// a network error resend the same event id; IdempotencyValidator flags such
// replays and they skip the limiter.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleBucketTTL is how long an unused bucket survives before a sweep drops it.
const idleBucketTTL = 10 * time.Minute

// keyFunc names the bucket a request draws from, e.g. "user:<sub>" or
// "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys by token subject when Auth verified one and by client
// IP otherwise. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if sub, ok := Subject(c); ok {
			return "user:" + sub
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key. It is safe for concurrent
// use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter refills rps tokens per second up to burst (at least 1).
// rps <= 0 turns the limiter off.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     max(burst, 1),
		keyFn:     keyFn,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// limiterFor returns the bucket for key. At most once per idleBucketTTL it
// first drops every bucket idle for that long.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= idleBucketTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= idleBucketTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator exempted this request.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// retryAfter is the whole seconds until lim can grant a token, at least 1.
// The trial reservation is cancelled so it costs nothing.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return max(int(math.Ceil(d.Seconds())), 1)
}

// Handler enforces the limits. A denied request gets 429, a Retry-After
// header and the error envelope with code too_many_requests.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	if rl.rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.keyFn(c)
		lim := rl.limiterFor(key)
		now := rl.now()
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		kind, _, _ := strings.Cut(key, ":")
		httpRateLimited.WithLabelValues(kind).Inc()

		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
