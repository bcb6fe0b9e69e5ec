package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, mutate func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := NewLimiter(2, time.Minute)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	ok, rem, _ := l.Allow("k", start)
	assert.True(t, ok)
	assert.Equal(t, 1, rem)
	ok, rem, _ = l.Allow("k", start.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, 0, rem)
	ok, _, reset := l.Allow("k", start.Add(2*time.Second))
	assert.False(t, ok)
	assert.Equal(t, start.Add(time.Minute), reset)

	// Just into the next window the previous one still weighs almost fully,
	// leaving room for a single event.
	ok, _, _ = l.Allow("k", start.Add(61*time.Second))
	assert.True(t, ok)
	ok, _, _ = l.Allow("k", start.Add(62*time.Second))
	assert.False(t, ok)

	// Late in the next window the previous one has mostly decayed.
	ok, _, _ = l.Allow("k", start.Add(110*time.Second))
	assert.True(t, ok)

	// After two idle windows the key starts fresh.
	ok, rem, _ = l.Allow("k", start.Add(5*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 1, rem)
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.Allow("a", now)
	l.Sweep(now.Add(3 * time.Minute))
	assert.Empty(t, l.windows)
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(nil, RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		w := serve(h, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := RateLimit(nil, RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, nil).Code)
	assert.Equal(t, http.StatusOK, serve(h, func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1" }).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, nil).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	h := RateLimit(nil, RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
	xff := func(addr string) func(*http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = addr
			r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
		}
	}

	assert.Equal(t, http.StatusOK, serve(h, xff("192.168.1.1:4444")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, xff("192.168.1.2:5555")).Code)
}

func TestBearerOrIP(t *testing.T) {
	h := RateLimit(nil, RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: BearerOrIP})(okHandler())
	bearer := func(tok string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
	}

	assert.Equal(t, http.StatusOK, serve(h, bearer("token-a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, bearer("token-b")).Code, "same IP, different user")
	assert.Equal(t, http.StatusTooManyRequests, serve(h, bearer("token-a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, nil).Code, "anonymous falls back to IP")
}
