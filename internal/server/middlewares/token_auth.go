package middlewares

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/givlyn/backupd/internal/server/handlers/api"
)

var errUnauthorized = errors.New("invalid or missing bearer token")

// TokenAuth requires "Authorization: Bearer <token>". An empty token disables the check.
func TokenAuth(token string) gin.HandlerFunc {
	if token == "" {
		slog.Info("api auth disabled")
		return func(c *gin.Context) {
			c.Next()
		}
	}
	slog.Info("api auth enabled")

	expected := []byte(token)
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			slog.Debug("api auth rejected", "ip", c.ClientIP(), "path", c.FullPath())
			api.AbortWithMessage(c, http.StatusUnauthorized, api.CodeUnauthorized, "Unauthorized", errUnauthorized)
			return
		}
		c.Next()
	}
}
