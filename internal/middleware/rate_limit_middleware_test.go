package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCacheRepoForLimiter struct {
	mock.Mock
}

func (m *MockCacheRepoForLimiter) Set(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepoForLimiter) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheRepoForLimiter) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockCacheRepoForLimiter) Increment(key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCacheRepoForLimiter) ExpireAt(key string, expiration time.Time) error {
	args := m.Called(key, expiration)
	return args.Error(0)
}

func (m *MockCacheRepoForLimiter) SetJSON(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepoForLimiter) GetJSON(key string, dest interface{}) error {
	args := m.Called(key, dest)
	return args.Error(0)
}

func limiterRouter(cache *MockCacheRepoForLimiter, cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ping", NewRateLimiter(cache).Limit(cfg), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func doRequest(router *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_FirstRequestStartsWindow(t *testing.T) {
	// Arrange
	cache := new(MockCacheRepoForLimiter)
	cache.On("Increment", mock.AnythingOfType("string")).Return(int64(1), nil).Once()
	cache.On("ExpireAt", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil).Once()

	router := limiterRouter(cache, RateLimitConfig{MaxRequests: 2, Window: time.Minute, KeyPrefix: "rl:test"})

	// Act
	w := doRequest(router)

	// Assert: первый запрос в окне проходит и взводит TTL счетчика
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	cache.AssertExpectations(t)
}

func TestRateLimiter_RejectsPastLimit(t *testing.T) {
	// Arrange: счетчик уже за лимитом, TTL трогать не нужно
	cache := new(MockCacheRepoForLimiter)
	cache.On("Increment", mock.AnythingOfType("string")).Return(int64(3), nil).Once()

	router := limiterRouter(cache, RateLimitConfig{MaxRequests: 2, Window: time.Minute, KeyPrefix: "rl:test"})

	// Act
	w := doRequest(router)

	// Assert
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	cache.AssertNotCalled(t, "ExpireAt", mock.Anything, mock.Anything)
}

func TestRateLimiter_FailsOpenOnCacheError(t *testing.T) {
	// Arrange: недоступный Redis не должен ронять публичные ручки
	cache := new(MockCacheRepoForLimiter)
	cache.On("Increment", mock.AnythingOfType("string")).Return(int64(0), assert.AnError).Once()

	router := limiterRouter(cache, RateLimitConfig{MaxRequests: 2, Window: time.Minute, KeyPrefix: "rl:test"})

	// Act
	w := doRequest(router)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
}
