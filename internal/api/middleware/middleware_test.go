package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	mw "github.com/complycheck/complycheck/internal/api/middleware"
)

// limiterQueue implements only the queue surface the rate limiter touches; a
// configurable error simulates Redis being down.
type limiterQueue struct {
	mu      sync.Mutex
	counts  map[string]int64
	incrErr error
}

func newLimiterQueue() *limiterQueue {
	return &limiterQueue{counts: make(map[string]int64)}
}

func (q *limiterQueue) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.incrErr != nil {
		return 0, q.incrErr
	}
	q.counts[key]++
	return q.counts[key], nil
}

func (q *limiterQueue) Push(_ context.Context, _ string, _ uuid.UUID) error { return nil }
func (q *limiterQueue) Pop(_ context.Context, _ string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}
func (q *limiterQueue) Length(_ context.Context, _ string) (int64, error) { return 0, nil }
func (q *limiterQueue) SetJobFields(_ context.Context, _ uuid.UUID, _ map[string]string) error {
	return nil
}
func (q *limiterQueue) GetJobFields(_ context.Context, _ uuid.UUID) (map[string]string, bool, error) {
	return nil, false, nil
}
func (q *limiterQueue) MarkInFlight(_ context.Context, _ uuid.UUID, _ time.Time) error { return nil }
func (q *limiterQueue) ClearInFlight(_ context.Context, _ uuid.UUID) error             { return nil }
func (q *limiterQueue) ExpiredInFlight(_ context.Context, _ time.Time) ([]uuid.UUID, error) {
	return nil, nil
}
func (q *limiterQueue) AddExpandedOnce(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return true, nil
}
func (q *limiterQueue) RemoveExpanded(_ context.Context, _, _ uuid.UUID) error { return nil }
func (q *limiterQueue) Ping(_ context.Context) error                           { return nil }
func (q *limiterQueue) Close() error                                           { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	rl := mw.NewRateLimit(newLimiterQueue(), 5)
	handler := rl.Limit(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_BlocksOverLimit(t *testing.T) {
	rl := mw.NewRateLimit(newLimiterQueue(), 1)
	handler := rl.Limit(okHandler())

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "request %d", i+1)
	}
}

func TestRateLimit_FailsOpenOnQueueError(t *testing.T) {
	q := newLimiterQueue()
	q.incrErr = fmt.Errorf("redis down")
	rl := mw.NewRateLimit(q, 1)
	handler := rl.Limit(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "limiter must not take the API down with Redis")
	}
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	handler := mw.Recovery(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestLogger_PassesThrough(t *testing.T) {
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
