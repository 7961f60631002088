package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the caller's identity. Authentication happens in front
// of the gateway; the gateway trusts this header.
const UserIDHeader = "X-User-ID"

const userIDKey = "userID"

// identify records the caller's user id, if any, on the context.
func identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
			c.Set(userIDKey, id)
		}
		c.Next()
	}
}

// requireUser rejects requests without an identity.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID(c) == "" {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// requestLogger logs each request once it completes and counts it.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.IncHTTPRequest(c.Request.Method, route, status)

		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		if status >= http.StatusInternalServerError {
			s.log.Warn("request", attrs...)
		} else {
			s.log.Debug("request", attrs...)
		}
	}
}
