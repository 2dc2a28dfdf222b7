package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/docwatch/common/logger"
)

type contextKey string

const (
	OwnerHeader = "X-Owner-ID"

	ownerContextKey contextKey = "owner_id"
)

// Recovery turns a panicking handler into a 500 and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(c.Request.Context(), "panic recovered in http handler",
					"panic", r,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

// Logger logs one line per request after the handler ran.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		switch {
		case c.Writer.Status() >= 500:
			level = slog.LevelError
		case c.Writer.Status() >= 400:
			level = slog.LevelWarn
		}

		slog.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP())
	}
}

// RequireOwner reads the caller's owner id from the X-Owner-ID header set by
// the command layer in front of this API. Requests without it are rejected.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + OwnerHeader + " header"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), ownerContextKey, ownerID)
		ctx = logger.WithLogFields(ctx, logger.LogFields{OwnerID: &ownerID})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func GetOwnerID(ctx context.Context) string {
	ownerID, _ := ctx.Value(ownerContextKey).(string)
	return ownerID
}
