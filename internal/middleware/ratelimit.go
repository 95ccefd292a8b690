package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// counter increments the request count of key in the current window and
// returns the new count and the time left in the window.
type counter interface {
	incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimit returns middleware that limits requests per IP to maxRequests
// within a fixed window. Counts live in Redis under "ratelimit:<name>:<ip>"
// so every server instance shares them; with a nil client they are kept in
// process memory. Returns 429 with Retry-After when exceeded.
func RateLimit(rdb *redis.Client, name string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	var c counter
	if rdb != nil {
		c = &redisCounter{rdb: rdb}
	} else {
		c = newMemoryCounter(window)
	}
	return rateLimit(c, name, maxRequests, window)
}

func rateLimit(cnt counter, name string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ratelimit:" + name + ":" + c.RealIP()
			count, ttl, err := cnt.incr(c.Request().Context(), key, window)
			if err != nil {
				// Fail open: a cache outage must not take the API down with it.
				slog.Warn("rate limiter unavailable",
					slog.String("limiter", name),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count > int64(maxRequests) {
				seconds := int(ttl.Round(time.Second).Seconds())
				if seconds < 1 {
					seconds = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"success": false,
					"error":   "Rate limit exceeded. Please try again later.",
				})
			}
			return next(c)
		}
	}
}

// redisCounter is a fixed-window counter: INCR, and set the expiry on the
// first hit of each window.
type redisCounter struct {
	rdb *redis.Client
}

func (r *redisCounter) incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}
	ttl, err := r.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// The expiry was lost (e.g. a crash between INCR and EXPIRE).
		r.rdb.Expire(ctx, key, window)
		ttl = window
	}
	return count, ttl, nil
}

// rateLimitEntry tracks request counts for a single key within a time window.
type rateLimitEntry struct {
	count       int64
	windowStart time.Time
}

// memoryCounter keeps windows in process memory.
type memoryCounter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time
}

func newMemoryCounter(window time.Duration) *memoryCounter {
	m := &memoryCounter{entries: make(map[string]*rateLimitEntry), now: time.Now}

	// Background cleanup of expired entries every minute.
	go func() {
		for {
			time.Sleep(time.Minute)
			m.mu.Lock()
			now := m.now()
			for key, entry := range m.entries {
				if now.Sub(entry.windowStart) > window*2 {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}()
	return m
}

func (m *memoryCounter) incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || now.Sub(entry.windowStart) > window {
		entry = &rateLimitEntry{windowStart: now}
		m.entries[key] = entry
	}
	entry.count++
	return entry.count, window - now.Sub(entry.windowStart), nil
}
