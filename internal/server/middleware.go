package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/root4loot/goutils/log"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"
)

// requestID tags every request with an ID, reusing the caller's when it
// looks sane.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := "[%s] %s %s %d %v"
		args := []interface{}{c.GetString(requestIDKey), c.Request.Method, c.Request.URL.Path, status, time.Since(start)}

		switch {
		case status >= http.StatusInternalServerError:
			log.Warnf(line, args...)
		case c.FullPath() == "/generate":
			log.Infof(line, args...)
		default:
			log.Debugf(line, args...)
		}
	}
}

// recovery turns a handler panic into a JSON 500. Captures have already
// released their browser by the time the panic reaches here.
func recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec interface{}) {
		log.Errorf("[%s] Panic serving %s: %v", c.GetString(requestIDKey), c.Request.URL.Path, rec)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// rateLimit rejects requests beyond the limiter's rate with 429.
func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
