package entries

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, period time.Duration) (*WriteLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewWriteLimiter(limit, period)
	l.now = clock.now
	return l, clock
}

func TestWriteLimiter_Allow(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestWriteLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(2, time.Second)

	assert.True(t, l.Allow("c"))
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))

	clock.advance(500 * time.Millisecond)
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))

	clock.advance(time.Second)
	assert.True(t, l.Allow("c"))
	assert.True(t, l.Allow("c"))
}

func TestWriteLimiter_Prune(t *testing.T) {
	l, clock := newTestLimiter(1, time.Second)
	l.Allow("old")
	clock.advance(2 * time.Second)
	l.Allow("new")

	assert.Equal(t, 1, l.Prune())
	assert.Len(t, l.buckets, 1)
}

func TestWriteLimiter_MiddlewareLimitsWritesOnly(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	h := l.Middleware(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/entries", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send(http.MethodPost).Code)

	rec := send(http.MethodDelete)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), ErrCodeRateLimited)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, send(http.MethodGet).Code)
	}
}
