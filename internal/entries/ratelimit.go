package entries

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/medrex/glucose-tracker/pkg/logger"
)

// ErrCodeRateLimited is returned with 429 responses
const ErrCodeRateLimited = "RATE_LIMITED"

// WriteLimiter bounds creates and deletes per client address using a token
// bucket refilled over period
type WriteLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	period  time.Duration
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewWriteLimiter allows limit writes per client within period
func NewWriteLimiter(limit int, period time.Duration) *WriteLimiter {
	return &WriteLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow takes a token for client if one is available
func (l *WriteLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[client]
	if !ok {
		b = &bucket{tokens: l.limit, lastRefill: now}
		l.buckets[client] = b
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed >= l.period {
		b.tokens = l.limit
		b.lastRefill = now
	} else if refill := int(elapsed.Nanoseconds() * int64(l.limit) / l.period.Nanoseconds()); refill > 0 {
		b.tokens = min(b.tokens+refill, l.limit)
		b.lastRefill = now
	}

	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// Prune drops buckets that have been full for at least one period
func (l *WriteLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.period)
	n := 0
	for client, b := range l.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, client)
			n++
		}
	}
	return n
}

// RunPruner prunes every interval until ctx is done
func (l *WriteLimiter) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// Middleware rejects POST and DELETE requests over the limit with 429.
// Reads are never limited.
func (l *WriteLimiter) Middleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}

			client := clientAddr(r)
			if !l.Allow(client) {
				log.WithContext(r.Context()).WithField("client", client).Warn("Write rate limit exceeded")
				w.Header().Set("Retry-After", retryAfter(l.period, l.limit))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error: "too many writes, slow down",
					Code:  ErrCodeRateLimited,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfter(period time.Duration, limit int) string {
	secs := int((period/time.Duration(limit) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
