package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/hlog"
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter is an in-process sliding window limiter. Each key's request
// times live in a ttlcache entry that expires one window after the last hit.
type RateLimiter struct {
	mu       sync.Mutex
	requests *ttlcache.Cache[string, []time.Time]
	window   time.Duration
	maxReqs  int
	now      func() time.Time
}

var _ Limiter = (*RateLimiter)(nil)

// NewRateLimiter creates a new rate limiter. A limit below one is raised to one.
func NewRateLimiter(window time.Duration, maxReqs int) *RateLimiter {
	if maxReqs < 1 {
		maxReqs = 1
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []time.Time](window),
		ttlcache.WithDisableTouchOnHit[string, []time.Time](),
	)
	go cache.Start()

	return &RateLimiter{
		requests: cache,
		window:   window,
		maxReqs:  maxReqs,
		now:      time.Now,
	}
}

// Stop ends the cache eviction loop
func (rl *RateLimiter) Stop() {
	rl.requests.Stop()
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	var reqs []time.Time
	if item := rl.requests.Get(key); item != nil {
		reqs = item.Value()
	}

	filtered := make([]time.Time, 0, len(reqs)+1)
	for _, t := range reqs {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) >= rl.maxReqs {
		retry := rl.window
		if len(filtered) > 0 {
			retry = filtered[0].Add(rl.window).Sub(now)
			rl.requests.Set(key, filtered, ttlcache.DefaultTTL)
		}
		return Decision{
			Allowed:    false,
			Limit:      rl.maxReqs,
			Remaining:  0,
			RetryAfter: retry,
		}, nil
	}

	filtered = append(filtered, now)
	rl.requests.Set(key, filtered, ttlcache.DefaultTTL)

	return Decision{
		Allowed:   true,
		Limit:     rl.maxReqs,
		Remaining: rl.maxReqs - len(filtered),
	}, nil
}

// RateLimitMiddleware rejects requests over the limit with 429. Limiter
// errors let the request through.
func RateLimitMiddleware(limiter Limiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 0 {
					secs = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				respondWithError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetIPKey builds the rate limit key from the client address. Forwarding
// headers count only when the router mounted chi's RealIP.
func GetIPKey(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// ClientIP returns the host part of RemoteAddr
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
