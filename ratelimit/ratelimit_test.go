package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisFailsOpen(t *testing.T) {
	assert.Nil(t, NewRedis(nil, 5, time.Minute, "submit", nil))
	var nilLimiter *Redis
	assert.True(t, nilLimiter.Allow(context.Background(), "1.2.3.4"))

	// Nothing listens on this port, so every check errors and is allowed.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	l := NewRedis(client, 1, time.Minute, "submit", nil)
	assert.True(t, l.Allow(context.Background(), "1.2.3.4"))
	assert.True(t, l.Allow(context.Background(), "1.2.3.4"))

	invalid := NewRedis(client, 0, time.Minute, "submit", nil)
	assert.True(t, invalid.Allow(context.Background(), "1.2.3.4"))
}

func TestLocalLimitsPerKey(t *testing.T) {
	l := NewLocal(2, time.Hour)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "a"))
	assert.True(t, l.Allow(ctx, "a"))
	assert.False(t, l.Allow(ctx, "a"))
	assert.True(t, l.Allow(ctx, "b"))

	// half an hour refills one token at 2 per hour
	l.now = func() time.Time { return base.Add(31 * time.Minute) }
	assert.True(t, l.Allow(ctx, "a"))
	assert.False(t, l.Allow(ctx, "a"))
}

func TestLocalEvictsIdleBuckets(t *testing.T) {
	l := NewLocal(1, time.Minute)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	l.Allow(context.Background(), "old")

	l.now = func() time.Time { return base.Add(10 * time.Minute) }
	l.Allow(context.Background(), "new")
	_, ok := l.buckets["old"]
	assert.False(t, ok)
}

func TestNewLocalInvalid(t *testing.T) {
	assert.Nil(t, NewLocal(0, time.Minute))
	var l *Local
	assert.True(t, l.Allow(context.Background(), "x"))
}

func TestMiddleware(t *testing.T) {
	l := NewLocal(1, time.Hour)
	h := Middleware(l, ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/applications", nil)
	req.RemoteAddr = "192.0.2.10:4711"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// A spoofed header does not open a fresh bucket.
	req.Header.Set("X-Forwarded-For", "10.9.8.7")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestClientIPIgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4711"
	assert.Equal(t, "192.0.2.10", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	assert.Equal(t, "192.0.2.10", ClientIP(req))
}

func TestTrustedClientIP(t *testing.T) {
	keyFn, err := TrustedClientIP([]string{"10.0.0.0/8", " 192.0.2.1 ", ""})
	require.NoError(t, err)

	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{"direct client", "203.0.113.5:1234", "", "203.0.113.5"},
		{"untrusted peer sends header", "203.0.113.5:1234", "198.51.100.7", "203.0.113.5"},
		{"trusted proxy", "10.1.2.3:80", "198.51.100.7", "198.51.100.7"},
		{"client spoofs leftmost hop", "10.1.2.3:80", "1.2.3.4, 198.51.100.7", "198.51.100.7"},
		{"chain of trusted proxies", "192.0.2.1:80", "198.51.100.7, 10.0.0.9", "198.51.100.7"},
		{"trusted proxy without header", "10.1.2.3:80", "", "10.1.2.3"},
		{"only trusted hops", "10.1.2.3:80", "10.0.0.7", "10.1.2.3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			assert.Equal(t, tc.want, keyFn(req))
		})
	}
}

func TestTrustedClientIPRejectsBadEntries(t *testing.T) {
	_, err := TrustedClientIP([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = TrustedClientIP([]string{"10.0.0.0/99"})
	assert.Error(t, err)

	keyFn, err := TrustedClientIP(nil)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4711"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	assert.Equal(t, "192.0.2.10", keyFn(req))
}
