/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"

	"github.com/jerry-enebeli/conciliation/config"
)

// SecretKeyHeader carries the shared secret when the server runs in secure mode.
const SecretKeyHeader = "X-Conciliation-Key"

const defaultLimiterTTL = 3 * time.Hour

// abort ends the request with the same envelope the handlers use.
func abort(c *gin.Context, httpStatus int, message, code string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{"status": -1, "message": message, "error": code})
}

func newLimiter(rl config.RateLimitConfig) *limiter.Limiter {
	ttl := defaultLimiterTTL
	if rl.CleanupIntervalSec != nil {
		ttl = time.Duration(*rl.CleanupIntervalSec) * time.Second
	}
	lmt := tollbooth.NewLimiter(*rl.RequestsPerSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: ttl})
	lmt.SetBurst(*rl.Burst)
	return lmt
}

// RateLimitMiddleware limits requests per client IP. It is a no-op when no limit is configured.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	if conf.RateLimit.RequestsPerSecond == nil || conf.RateLimit.Burst == nil {
		return func(c *gin.Context) { c.Next() }
	}

	lmt := newLimiter(conf.RateLimit)
	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpError != nil {
			abort(c, httpError.StatusCode, httpError.Message, "RATE_LIMITED")
			return
		}
		c.Next()
	}
}

// SecretKeyAuthMiddleware rejects requests whose secret key header does not match the
// configured server secret.
func SecretKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil || conf.Server.SecretKey == "" {
			abort(c, http.StatusInternalServerError, "Secret key is not configured", "INTERNAL_SERVER_ERROR")
			return
		}

		clientSecret := c.GetHeader(SecretKeyHeader)
		switch {
		case clientSecret == "":
			abort(c, http.StatusUnauthorized, "Missing secret key", "UNAUTHORIZED")
			return
		case subtle.ConstantTimeCompare([]byte(conf.Server.SecretKey), []byte(clientSecret)) != 1:
			abort(c, http.StatusUnauthorized, "Invalid secret key", "UNAUTHORIZED")
			return
		}

		c.Next()
	}
}
