package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRateLimitRouter(t *testing.T, cfg RateLimitConfig) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router := gin.New()
	router.Use(DistributedRateLimit(client, cfg, zaptest.NewLogger(t)))
	router.GET("/api/v1/admin/users", func(c *gin.Context) {
		c.String(200, "OK")
	})
	router.POST("/api/v1/auth/login", func(c *gin.Context) {
		c.String(200, "OK")
	})
	router.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})
	return router, mr
}

func TestDistributedRateLimit(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		router, _ := newRateLimitRouter(t, RateLimitConfig{Requests: 5, Window: time.Minute})

		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/v1/admin/users", nil)
			req.RemoteAddr = "192.168.1.1:1234"
			router.ServeHTTP(w, req)
			assert.Equal(t, 200, w.Code, "request %d should succeed", i+1)
		}
	})

	t.Run("blocks requests exceeding limit", func(t *testing.T) {
		router, _ := newRateLimitRouter(t, RateLimitConfig{Requests: 3, Window: time.Minute})

		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/v1/admin/users", nil)
			req.RemoteAddr = "192.168.1.1:1234"
			router.ServeHTTP(w, req)
			assert.Equal(t, 200, w.Code)
		}

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/admin/users", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		router.ServeHTTP(w, req)

		assert.Equal(t, 429, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("auth paths get stricter limit", func(t *testing.T) {
		router, _ := newRateLimitRouter(t, RateLimitConfig{
			Requests:     100,
			Window:       time.Minute,
			AuthRequests: 2,
			AuthWindow:   time.Minute,
		})

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/api/v1/auth/login", nil)
			req.RemoteAddr = "192.168.1.1:1234"
			router.ServeHTTP(w, req)
			assert.Equal(t, 200, w.Code)
		}

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		router.ServeHTTP(w, req)
		assert.Equal(t, 429, w.Code)
	})

	t.Run("health endpoint exempt", func(t *testing.T) {
		router, _ := newRateLimitRouter(t, RateLimitConfig{Requests: 1, Window: time.Minute})

		for i := 0; i < 10; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/health", nil)
			req.RemoteAddr = "192.168.1.1:1234"
			router.ServeHTTP(w, req)
			assert.Equal(t, 200, w.Code)
		}
	})

	t.Run("fails open when redis is down", func(t *testing.T) {
		router, mr := newRateLimitRouter(t, RateLimitConfig{Requests: 1, Window: time.Minute})
		mr.Close()

		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/v1/admin/users", nil)
			req.RemoteAddr = "192.168.1.1:1234"
			router.ServeHTTP(w, req)
			assert.Equal(t, 200, w.Code)
		}
	})

	t.Run("sets rate limit headers", func(t *testing.T) {
		router, _ := newRateLimitRouter(t, RateLimitConfig{Requests: 10, Window: time.Minute})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/admin/users", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		router.ServeHTTP(w, req)

		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	})
}
