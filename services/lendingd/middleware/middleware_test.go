package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	var throttled []string
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, nil, func(reason string) {
		throttled = append(throttled, reason)
	})
	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/borrow", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.JSONEq(t, `{"ok":false,"message":"Too Many Requests"}`, res.Body.String())
	assert.Equal(t, []string{"rate_limit"}, throttled)
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, nil, nil)
	handler := limiter.Middleware(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
		req.Header.Set("X-Forwarded-For", ip+", 192.168.0.1")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		assert.Equal(t, http.StatusOK, res.Code, ip)
	}
}

func TestRateLimiterDisabledWithoutRate(t *testing.T) {
	handler := NewRateLimiter(RateLimit{}, nil, nil).Middleware(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, res.Code)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1}, nil, nil)
	limiter.clockNow = func() time.Time { return now }

	limiter.obtainLimiter("a")
	now = now.Add(10 * time.Minute)
	limiter.obtainLimiter("b")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.visitors, "a")
	assert.Contains(t, limiter.visitors, "b")
}

func TestRequestIDPropagatesOrMints(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", res.Header().Get(RequestIDHeader))

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, res.Header().Get(RequestIDHeader))
}

type observation struct {
	route  string
	status int
}

type recordingObserver struct{ seen []observation }

func (o *recordingObserver) ObserveRequest(route string, status int, _ time.Duration) {
	o.seen = append(o.seen, observation{route: route, status: status})
}

func TestObserveReportsRoutePattern(t *testing.T) {
	observer := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(Observe(observer, nil))
	r.Get("/v1/pools/{asset}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/pools/EUR", nil))
	require.Len(t, observer.seen, 1)
	assert.Equal(t, observation{route: "/v1/pools/{asset}", status: http.StatusNotFound}, observer.seen[0])
}
