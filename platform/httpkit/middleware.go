// Package httpkit holds the gin middleware and response helpers shared by
// every HTTP module.
package httpkit

import (
	"net/http"
	"time"

	"nurture_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request. Server errors recorded with
// c.Error are logged with their cause.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		method, path, ip := c.Request.Method, c.Request.URL.Path, c.ClientIP()
		status := c.Writer.Status()
		if last := c.Errors.Last(); last != nil && status >= http.StatusInternalServerError {
			log.HTTPError(method, path, status, last, ip)
			return
		}
		log.HTTPRequest(method, path, status, float64(time.Since(started).Milliseconds()), ip)
	}
}

// apiHeaders are sent on every response. The API serves JSON only, so
// nothing may be framed or loaded from it.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets the fixed API response headers, plus HSTS on TLS.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range apiHeaders {
			c.Header(h[0], h[1])
		}
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
