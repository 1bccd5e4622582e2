package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(perWindow, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: perWindow,
		WindowDuration:    time.Second,
		BurstSize:         burst,
	})
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	rl, clock := newTestLimiter(10, 2)

	allowed := 0
	for i := 0; i < 20; i++ {
		ok, err := rl.Allow(ctx, "user:alice")
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed)

	ok, _ := rl.Allow(ctx, "user:bob")
	assert.True(t, ok, "keys have independent buckets")

	clock.Advance(time.Second)
	ok, _ = rl.Allow(ctx, "user:alice")
	assert.True(t, ok, "tokens refill after a window")
}

func TestRateLimiter_RemainingAndCleanup(t *testing.T) {
	ctx := context.Background()
	rl, clock := newTestLimiter(5, 1)

	remaining, err := rl.Remaining(ctx, "user:alice")
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)

	rl.Allow(ctx, "user:alice")
	rl.Allow(ctx, "user:alice")
	remaining, _ = rl.Remaining(ctx, "user:alice")
	assert.Equal(t, 4, remaining)

	clock.Advance(3 * time.Second)
	rl.Cleanup()
	rl.mu.RLock()
	assert.Empty(t, rl.buckets)
	rl.mu.RUnlock()
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(1, 1)
	handler := NewIdentityMiddleware("", true).Handler(
		NewRateLimitMiddleware(rl).Handler(echoUser()),
	)

	send := func(user string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPut, "/projects/p1/members/bob", nil)
		if user != "" {
			r.Header.Set(DefaultIdentityHeader, user)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send("alice").Code)
	w := send("alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = send("alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["code"])

	assert.Equal(t, http.StatusOK, send("bob").Code)
	assert.Equal(t, http.StatusOK, send("").Code, "anonymous callers are keyed by address")
}

type brokenLimiter struct{ *RateLimiter }

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, assert.AnError
}

func TestRateLimitMiddleware_LimiterFailure(t *testing.T) {
	limiter := brokenLimiter{RateLimiter: NewRateLimiter(nil)}
	m := NewRateLimitMiddleware(limiter)

	w := httptest.NewRecorder()
	m.Handler(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	m.SetFailOpen(false)
	w = httptest.NewRecorder()
	m.Handler(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:1234"
	assert.Equal(t, "10.0.0.9:1234", getClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(r))
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	rl := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
		BurstSize:         1,
	}, "")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "user:alice")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := rl.Remaining(ctx, "user:alice")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	remaining, err = rl.Remaining(ctx, "user:bob")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	ttl, err := rl.TTL(ctx, "user:alice")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl, "later requests do not extend the window")

	mr.FastForward(time.Minute + time.Second)
	ok, err = rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rl.Reset(ctx, "user:alice"))
	assert.False(t, mr.Exists("collab:ratelimit:user:alice"))
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	rl := NewDistributedRateLimiter(client, nil, "test")
	_, err := rl.Allow(context.Background(), "user:alice")
	assert.Error(t, err)

	w := httptest.NewRecorder()
	NewRateLimitMiddleware(rl).Handler(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
