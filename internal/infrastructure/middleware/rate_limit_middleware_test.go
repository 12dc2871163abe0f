package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"streamhub/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func get(router http.Handler, remoteAddr, xff string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	router.ServeHTTP(w, req)
	return w.Code
}

// Test that when rate limiting is disabled, middleware lets all requests through.
func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false
	router := newLimitedRouter(NewHTTPRateLimitMiddleware(cfg))

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", ""))
}

// Test basic per-IP rate limiting behaviour.
func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	router := newLimitedRouter(NewHTTPRateLimitMiddleware(cfg))

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1001", ""))
	// a different client has its own budget
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.2:1000", ""))
	// first forwarded hop identifies the client behind a proxy
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", "203.0.113.7, 10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.9:1000", "203.0.113.7"))
}

func TestWebSocketConnectLimitMiddleware(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 2
	router := newLimitedRouter(NewWebSocketConnectLimitMiddleware(cfg))

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1000", ""))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "192.0.2.1", clientIP(req))
}
