package httpserver

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	secretHeader    = "X-Warden-Secret"
	requestIDHeader = "X-Request-ID"
)

func authMiddleware(secret string) gin.HandlerFunc {
	expected := strings.TrimSpace(secret)

	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(secretHeader)), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response{
				Ok:    false,
				Error: "unauthorized",
			})
			return
		}
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("request_id"),
		)
	}
}
