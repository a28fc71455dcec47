package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/pkg/database"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)} }

func gormStore(t *testing.T) Store {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	return NewGormStore(db)
}

func redisStore(t *testing.T) Store {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb)
}

func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("gorm", func(t *testing.T) { fn(t, gormStore(t)) })
	t.Run("redis", func(t *testing.T) { fn(t, redisStore(t)) })
}

func TestCheckAndIncrementWindow(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		clk := newClock()
		l := NewLimiter(store, nil, WithClock(clk.Now))
		ctx := context.Background()
		const n = 3
		window := 10 * time.Minute

		for i := 1; i <= n; i++ {
			d, err := l.CheckAndIncrement(ctx, "user:a", EndpointConnections, TypeFollowRequest, n, window)
			require.NoError(t, err)
			assert.True(t, d.Allowed, "call %d", i)
			assert.Equal(t, i, d.Count)
			clk.Advance(time.Minute)
		}

		d, err := l.CheckAndIncrement(ctx, "user:a", EndpointConnections, TypeFollowRequest, n, window)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, n+1, d.Count, "denied calls still count")
		assert.Equal(t, 7*time.Minute, d.RetryAfter)

		// other keys are independent
		d, err = l.CheckAndIncrement(ctx, "user:b", EndpointConnections, TypeFollowRequest, n, window)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		d, err = l.CheckAndIncrement(ctx, "user:a", EndpointContacts, TypeContactMatch, n, window)
		require.NoError(t, err)
		assert.True(t, d.Allowed)

		clk.Advance(7 * time.Minute)
		d, err = l.CheckAndIncrement(ctx, "user:a", EndpointConnections, TypeFollowRequest, n, window)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "new window after expiry")
		assert.Equal(t, 1, d.Count)
		assert.Equal(t, clk.Now(), d.WindowStart)
	})
}

func TestGateReturnsTypedError(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		clk := newClock()
		l := NewLimiter(store, map[string]Policy{
			TypeContactMatch: {MaxRequests: 1, Window: time.Hour},
		}, WithClock(clk.Now))
		ctx := context.Background()

		require.NoError(t, l.Gate(ctx, "user:a", EndpointContacts, TypeContactMatch))
		clk.Advance(15 * time.Minute)
		err := l.Gate(ctx, "user:a", EndpointContacts, TypeContactMatch)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrRateLimitExceeded))
		var e *apperr.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, 45*time.Minute, e.RetryAfter)

		// 未配置策略的类型拒绝放行
		err = l.Gate(ctx, "user:a", EndpointSuggestions, "unknown")
		require.Error(t, err)
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	})
}

func TestConcurrentCallsAdmitExactlyMax(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		l := NewLimiter(store, nil)
		ctx := context.Background()
		const max, callers = 5, 20

		var admitted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := l.CheckAndIncrement(ctx, "user:c", EndpointContacts, TypeContactMatch, max, time.Hour)
				if err == nil && d.Allowed {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(max), admitted.Load())
	})
}

func TestInvalidArguments(t *testing.T) {
	l := NewLimiter(redisStore(t), nil)
	_, err := l.CheckAndIncrement(context.Background(), "", EndpointContacts, TypeContactMatch, 1, time.Minute)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = l.CheckAndIncrement(context.Background(), "user:x", EndpointContacts, TypeContactMatch, 0, time.Minute)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestGormStorePersistsSingleRowPerKey(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	store := NewGormStore(db)
	clk := newClock()
	l := NewLimiter(store, nil, WithClock(clk.Now))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.CheckAndIncrement(ctx, "user:a", EndpointSuggestions, TypeSuggestions, 2, time.Minute)
		require.NoError(t, err)
	}
	var rows []model.RateLimitWindow
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].RequestCount)
	assert.Equal(t, clk.Now().UnixMilli(), rows[0].WindowStart)

	clk.Advance(2 * time.Minute)
	n, err := store.PurgeExpired(ctx, clk.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "user:42", Identifier("42", "10.0.0.1"))
	a := Identifier("", "10.0.0.1")
	assert.Equal(t, a, Identifier("", " 10.0.0.1 "))
	assert.NotContains(t, a, "10.0.0.1")
	assert.NotEqual(t, a, Identifier("", "10.0.0.2"))
	assert.Equal(t, "origin:unknown", Identifier("", ""))
}

func TestOriginGuard(t *testing.T) {
	g := NewOriginGuard(1, 2)
	clk := newClock()
	g.now = clk.Now

	assert.True(t, g.Allow("a"))
	assert.True(t, g.Allow("a"))
	assert.False(t, g.Allow("a"))
	assert.True(t, g.Allow("b"))

	clk.Advance(time.Second)
	assert.True(t, g.Allow("a"))

	clk.Advance(time.Hour)
	assert.Equal(t, 2, g.Sweep())
}
