package adminapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// LimitConfig defines token bucket settings for one request class.
type LimitConfig struct {
	RequestsPerSecond int
	BurstSize         int
}

// Limiter rate-limits mutating admin requests. Read requests pass through
// untouched; governance writes are human-scale and a runaway client should
// not be able to flood the review pipeline.
type Limiter struct {
	mu     sync.Mutex
	rate   float64
	cap    float64
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter. Non-positive values fall back to defaults.
func NewLimiter(cfg LimitConfig) *Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = rps
	}
	return &Limiter{
		rate:   float64(rps),
		cap:    float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Allow consumes one token, reporting the remaining budget.
func (l *Limiter) Allow() (ok bool, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.cap {
		l.tokens = l.cap
	}
	l.last = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true, int(l.tokens)
	}
	return false, 0
}

// middleware applies the limiter to mutating methods only.
func (l *Limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		ok, remaining := l.Allow()
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(l.rate)))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
