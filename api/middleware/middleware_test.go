package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jerry-enebeli/conciliation/config"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/institutions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": 1})
	})
	return r
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		secretKey    string
		header       string
		expectedCode int
	}{
		{"valid key", "master-key", "master-key", http.StatusOK},
		{"missing key", "master-key", "", http.StatusUnauthorized},
		{"wrong key", "master-key", "guess", http.StatusUnauthorized},
		{"server without secret", "", "anything", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.MockConfig(&config.Configuration{
				Server: config.ServerConfig{Secure: true, SecretKey: tt.secretKey},
			})
			r := newEngine(SecretKeyAuthMiddleware())

			req := httptest.NewRequest(http.MethodGet, "/institutions", nil)
			if tt.header != "" {
				req.Header.Set(SecretKeyHeader, tt.header)
			}
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rps := 1.0
	burst := 1
	cleanup := 60
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{
		RequestsPerSecond:  &rps,
		Burst:              &burst,
		CleanupIntervalSec: &cleanup,
	}}
	r := newEngine(RateLimitMiddleware(conf))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/institutions", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	r := newEngine(RateLimitMiddleware(&config.Configuration{}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/institutions", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}
