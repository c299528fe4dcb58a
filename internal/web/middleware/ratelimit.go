package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/parque/internal/core"
)

// errRateLimited maps to RATE001 through core.MapError.
var errRateLimited = errors.New("rate limit exceeded")

// visitorTTL is how long an idle client keeps its bucket.
const visitorTTL = 10 * time.Minute

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	mu       sync.Mutex
	visitors *cache.Cache
	limit    rate.Limit
	burst    int
	retry    time.Duration
}

// NewRateLimiter allows perMinute sustained requests per client with the
// given burst. Non-positive values are clamped to one.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	perMinute = max(perMinute, 1)
	burst = max(burst, 1)
	interval := time.Minute / time.Duration(perMinute)
	return &RateLimiter{
		visitors: cache.New(visitorTTL, visitorTTL/2),
		limit:    rate.Every(interval),
		burst:    burst,
		retry:    interval,
	}
}

// Allow consumes a token for key.
func (l *RateLimiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

func (l *RateLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.visitors.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.visitors.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.visitors.SetDefault(key, lim)
	return lim
}

// Middleware rejects requests over the limit with 429 and Retry-After.
// Clients are keyed by r.RemoteAddr, so mount it after TrustedRealIP.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.RemoteAddr) {
			secs := int(math.Ceil(l.retry.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(core.MapError(errRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}
