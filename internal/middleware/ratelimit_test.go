package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_slidingWindow(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)
	t.Cleanup(rl.Stop)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := rl.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
		now = now.Add(10 * time.Second)
	}

	d, err := rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// the first hit leaves the window 30s later
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	// other keys are independent
	d, err = rl.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	now = now.Add(31 * time.Second)
	d, err = rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestRateLimiter_nonPositiveLimit(t *testing.T) {
	for _, max := range []int{0, -1} {
		rl := NewRateLimiter(time.Minute, max)
		t.Cleanup(rl.Stop)

		d, err := rl.Allow(context.Background(), "ip:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1, d.Limit)

		d, err = rl.Allow(context.Background(), "ip:1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Positive(t, d.RetryAfter)
	}
}

func TestRateLimiter_deniesWithoutRecordedHits(t *testing.T) {
	rl := &RateLimiter{
		requests: ttlcache.New[string, []time.Time](),
		window:   time.Minute,
		maxReqs:  0,
		now:      time.Now,
	}

	d, err := rl.Allow(context.Background(), "ip:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	t.Cleanup(rl.Stop)

	h := RateLimitMiddleware(rl, GetIPKey)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	hit := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1:1111").Code)
	rec := hit("10.0.0.1:2222")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = hit("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "too many requests, please try again later", decodeGateError(t, rec).Error.Message)

	assert.Equal(t, http.StatusOK, hit("10.0.0.2:1111").Code)
}

func TestRateLimitMiddleware_failsOpen(t *testing.T) {
	h := RateLimitMiddleware(failingLimiter{}, GetIPKey)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:5000"
	assert.Equal(t, "192.168.1.9", ClientIP(req))
	assert.Equal(t, "ip:192.168.1.9", GetIPKey(req))

	req.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}

// Requires a running Redis: TEST_REDIS_ADDR=localhost:6379
func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis limiter test")
	}
	rdb := NewRedisClient(addr, "", 0)
	require.NotNil(t, rdb, "redis not reachable at %s", addr)
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLimiter(rdb, "test:"+uuid.NewString(), time.Minute, 2)
	ctx := context.Background()

	d, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, err = l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestAsInt64(t *testing.T) {
	assert.Equal(t, int64(3), asInt64(int64(3)))
	assert.Equal(t, int64(4), asInt64("4"))
	assert.Equal(t, int64(0), asInt64(nil))
}
