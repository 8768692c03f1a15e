package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

const requestIDKey = "request_id"

// RequestLogger assigns every request an id and logs it once it completes.
func RequestLogger(logger hclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		if c.Request.URL.Path == "/api/health" {
			return
		}
		logger.Info("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"size", c.Writer.Size(),
		)
	}
}

// CORS allows any origin, as the bundled web UI may be served elsewhere.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// APIKeyAuth requires key on /api/ routes other than health, read from the
// X-API-Key header or the "key" query parameter. An empty key leaves the API
// open.
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if key == "" || !strings.HasPrefix(path, "/api/") || path == "/api/health" {
			c.Next()
			return
		}

		given := c.GetHeader("X-API-Key")
		if given == "" {
			given = c.Query("key")
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or missing API Key"})
			return
		}
		c.Next()
	}
}
