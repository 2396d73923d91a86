package api

import (
	"net/http"
	"sync"
	"time"
)

// DeleteRateLimiter is a token bucket guarding destructive endpoints. It
// allows a burst of capacity deletes, then refills one token per interval.
type DeleteRateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewDeleteRateLimiter creates a limiter with the given burst capacity and
// refill interval.
func NewDeleteRateLimiter(capacity int, interval time.Duration) *DeleteRateLimiter {
	now := time.Now
	return &DeleteRateLimiter{
		tokens:   float64(capacity),
		capacity: float64(capacity),
		interval: interval,
		last:     now(),
		now:      now,
	}
}

// Allow consumes one token if available.
func (l *DeleteRateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() / l.interval.Seconds()
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Middleware rejects requests with 429 once the bucket is drained.
func (l *DeleteRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			WriteProblem(w, r, http.StatusTooManyRequests, "Delete rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
