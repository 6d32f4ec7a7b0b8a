package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"alocubano-ticketing/internal/status"
	"alocubano-ticketing/monitoring"
)

// CounterStore is the check-and-increment backend behind the rate limiter.
// The increment and the reset decision happen inside one call so no backend
// can reintroduce a read-then-write race.
type CounterStore interface {
	// Incr bumps the counter for key, starting a new window of length
	// window when the key is absent or expired. It returns the
	// post-increment count and the remaining window duration.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps counters in-process. State is per instance and resets on
// restart; multi-instance deployments that need shared limits use
// RedisStore instead.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		entry = &memoryEntry{count: 0, resetAt: now.Add(window)}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, entry.resetAt.Sub(now), nil
}

// RedisStore shares counters across instances via INCR + EXPIRE.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	rkey := "ratelimit:" + key

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, rkey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("rate limit expire: %w", err)
		}
		return count, window, nil
	}

	ttl, err := s.client.TTL(ctx, rkey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit ttl: %w", err)
	}
	if ttl < 0 {
		// Key lost its expiry (e.g. crash between INCR and EXPIRE).
		// Re-arm rather than locking the client out forever.
		if err := s.client.Expire(ctx, rkey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("rate limit expire: %w", err)
		}
		ttl = window
	}
	return count, ttl, nil
}

// RateLimiter enforces a fixed window per key.
type RateLimiter struct {
	store  CounterStore
	limit  int64
	window time.Duration
}

func NewRateLimiter(store CounterStore, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, limit: limit, window: window}
}

// Check records one request for key. A nil error means the request is
// allowed. An exhausted window returns status.ErrRateLimited plus retryAfter,
// the whole number of seconds until the window resets, rounded up so clients
// never retry early. Any other error is a counter-backend fault.
func (rl *RateLimiter) Check(ctx context.Context, key string) (retryAfter int, err error) {
	count, remaining, err := rl.store.Incr(ctx, key, rl.window)
	if err != nil {
		return 0, err
	}
	if count <= rl.limit {
		return 0, nil
	}
	secs := int(math.Ceil(remaining.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs, status.ErrRateLimited
}

// Intercept is the route middleware form of Check, keyed by client IP.
func (rl *RateLimiter) Intercept(e *core.RequestEvent) error {
	key := e.RealIP()

	retryAfter, err := rl.Check(e.Request.Context(), key)
	switch {
	case err == nil:
		return e.Next()
	case errors.Is(err, status.ErrRateLimited):
		monitoring.TrackRateLimited(e.Request.URL.Path)
		e.Response.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		return e.JSON(http.StatusTooManyRequests, map[string]any{
			"error":      "Rate limit exceeded: too many requests, please slow down",
			"retryAfter": retryAfter,
		})
	default:
		// A broken counter backend should not take checkout down.
		slog.Error("rate limiter unavailable", "key", key, "err", err)
		return e.Next()
	}
}
