package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"payment-core/config"
	"payment-core/internal/adapter/http/middleware"
	"payment-core/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// fakeRateLimitStore counts in memory, one counter per key.
type fakeRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int64
	fail   bool
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{counts: make(map[string]int64)}
}

func (f *fakeRateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	if f.fail {
		return nil, errors.New("store down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	count := f.counts[key]
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &ports.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(window).Unix(),
	}, nil
}

func newLimitedRouter(store ports.RateLimitStore, rules []middleware.RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RateLimiter(store, "payments", rules, zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	store := newFakeRateLimitStore()
	r := newLimitedRouter(store, middleware.RulesFromConfig(config.RateLimitConfig{
		PerMinute: 2, PerHour: 100, PerDay: 1000,
	}))

	w := doRequest(r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_BlocksOverMinuteCap(t *testing.T) {
	store := newFakeRateLimitStore()
	r := newLimitedRouter(store, middleware.RulesFromConfig(config.RateLimitConfig{
		PerMinute: 1, PerHour: 100, PerDay: 1000,
	}))

	assert.Equal(t, http.StatusOK, doRequest(r).Code)

	w := doRequest(r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_HourCapIndependentOfMinuteCap(t *testing.T) {
	store := newFakeRateLimitStore()
	r := newLimitedRouter(store, middleware.RulesFromConfig(config.RateLimitConfig{
		PerMinute: 100, PerHour: 1, PerDay: 1000,
	}))

	assert.Equal(t, http.StatusOK, doRequest(r).Code)

	w := doRequest(r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiter_DayCapIndependentOfShorterWindows(t *testing.T) {
	store := newFakeRateLimitStore()
	r := newLimitedRouter(store, middleware.RulesFromConfig(config.RateLimitConfig{
		PerMinute: 100, PerHour: 100, PerDay: 1,
	}))

	assert.Equal(t, http.StatusOK, doRequest(r).Code)

	w := doRequest(r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiter_DegradedModeAllows(t *testing.T) {
	store := newFakeRateLimitStore()
	store.fail = true
	r := newLimitedRouter(store, middleware.RulesFromConfig(config.RateLimitConfig{
		PerMinute: 1, PerHour: 1, PerDay: 1,
	}))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r).Code)
	}
}
