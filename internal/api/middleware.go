package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Constants for context keys
const (
	ContextUserIDKey = "userID"
)

// SubjectSource reports the signed-in user. Implemented by auth.Provider.
type SubjectSource interface {
	Subject() (string, bool)
}

// RequireSession rejects requests while no user is signed in. The token itself
// was verified by the backend at login; here only its subject and expiry matter.
func RequireSession(sessions SubjectSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := sessions.Subject()
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "No active session")
			return
		}
		c.Set(ContextUserIDKey, subject)
		c.Next()
	}
}

// RequestLogger logs one line per request in the same format as the rest of the daemon.
func RequestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/api/v1/sync/events" {
			return
		}
		logger.Printf("INFO: %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// Helper function to get User ID from context (used by handlers)
func getUserIDFromContext(c *gin.Context) (string, error) {
	idRaw, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", errors.New("user ID not found in context")
	}
	idStr, ok := idRaw.(string)
	if !ok {
		return "", errors.New("invalid user ID type in context")
	}
	return idStr, nil
}
