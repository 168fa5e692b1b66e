package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLimiterBurstAndRefill(t *testing.T) {
	c := &clock{t: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	l := New(3, 60, WithClock(c.now))

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("10.0.0.1")
		require.True(t, ok, "request %d", i+1)
	}
	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = l.Allow("10.0.0.2")
	assert.True(t, ok, "keys are independent")

	c.t = c.t.Add(2 * time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1")
	assert.False(t, ok)

	l.Reset("10.0.0.1")
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)
}

func TestLimiterSweepsIdleBuckets(t *testing.T) {
	c := &clock{t: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	l := New(1, 1, WithClock(c.now), WithBucketTTL(time.Minute))
	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	c.t = c.t.Add(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}

func TestMiddleware(t *testing.T) {
	c := &clock{t: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	h := Middleware(New(1, 6, WithClock(c.now)), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/account/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve("192.0.2.1:5000").Code)
	rec := serve("192.0.2.1:5001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	assert.Equal(t, http.StatusNoContent, serve("192.0.2.2:5000").Code)
}
