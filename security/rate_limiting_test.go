package security

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alocubano-ticketing/internal/status"
)

func newClockedMemoryStore(start time.Time) (*MemoryStore, *time.Time) {
	now := start
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	return store, &now
}

func TestRateLimiterBoundary(t *testing.T) {
	store, now := newClockedMemoryStore(time.Now())
	rl := NewRateLimiter(store, 20, 15*time.Minute)
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		_, err := rl.Check(ctx, "1.2.3.4")
		require.NoError(t, err, "call %d should pass", i)
	}

	retryAfter, err := rl.Check(ctx, "1.2.3.4")
	assert.ErrorIs(t, err, status.ErrRateLimited)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 900)

	// A different key is unaffected by the first key's exhaustion.
	_, err = rl.Check(ctx, "5.6.7.8")
	require.NoError(t, err)

	// After the window elapses the key starts fresh.
	*now = now.Add(15*time.Minute + time.Second)
	_, err = rl.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
}

func TestRateLimiterRetryAfterShrinks(t *testing.T) {
	store, now := newClockedMemoryStore(time.Now())
	rl := NewRateLimiter(store, 1, 10*time.Minute)
	ctx := context.Background()

	_, err := rl.Check(ctx, "key")
	require.NoError(t, err)

	first, err := rl.Check(ctx, "key")
	require.ErrorIs(t, err, status.ErrRateLimited)

	*now = now.Add(4 * time.Minute)
	later, err := rl.Check(ctx, "key")
	require.ErrorIs(t, err, status.ErrRateLimited)

	assert.Less(t, later, first)
	assert.Greater(t, later, 0)
}

func TestMemoryStoreConcurrentCounts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const calls = 50
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.Incr(ctx, "shared", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, _, err := store.Incr(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(calls+1), count)
}

func TestRedisStoreFirstRequest(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)
	ctx := context.Background()

	mock.ExpectIncr("ratelimit:9.9.9.9").SetVal(1)
	mock.ExpectExpire("ratelimit:9.9.9.9", 15*time.Minute).SetVal(true)

	count, remaining, err := store.Incr(ctx, "9.9.9.9", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 15*time.Minute, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreSubsequentRequest(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)
	ctx := context.Background()

	mock.ExpectIncr("ratelimit:9.9.9.9").SetVal(21)
	mock.ExpectTTL("ratelimit:9.9.9.9").SetVal(7 * time.Minute)

	count, remaining, err := store.Incr(ctx, "9.9.9.9", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(21), count)
	assert.Equal(t, 7*time.Minute, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreReArmsLostExpiry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client)
	ctx := context.Background()

	mock.ExpectIncr("ratelimit:k").SetVal(3)
	mock.ExpectTTL("ratelimit:k").SetVal(-1)
	mock.ExpectExpire("ratelimit:k", time.Minute).SetVal(true)

	_, remaining, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiterWithRedisBackend(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rl := NewRateLimiter(NewRedisStore(client), 20, 15*time.Minute)
	ctx := context.Background()

	mock.ExpectIncr("ratelimit:ip").SetVal(21)
	mock.ExpectTTL("ratelimit:ip").SetVal(90 * time.Second)

	retryAfter, err := rl.Check(ctx, "ip")
	assert.ErrorIs(t, err, status.ErrRateLimited)
	assert.Equal(t, 90, retryAfter)
}
