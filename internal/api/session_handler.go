package api

import (
	"alcyxob/fitness-sync/internal/auth"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionHandler receives the token from the login flow of the app shell.
type SessionHandler struct {
	provider *auth.Provider
	sync     Syncer
}

func NewSessionHandler(provider *auth.Provider, sync Syncer) *SessionHandler {
	return &SessionHandler{provider: provider, sync: sync}
}

type StartSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// StartSession stores the token and pushes whatever was recorded while signed out.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	claims, err := h.provider.SetToken(req.Token)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrTokenExpired) {
			status = http.StatusUnauthorized
		}
		abortWithError(c, status, err.Error())
		return
	}

	h.sync.KickAll()

	subject, _ := h.provider.Subject()
	resp := gin.H{"userId": subject}
	if claims.ExpiresAt != nil {
		resp["expiresAt"] = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, resp)
}

// EndSession signs out. Local data stays; it syncs again after the next sign-in.
func (h *SessionHandler) EndSession(c *gin.Context) {
	h.provider.Clear()
	c.Status(http.StatusNoContent)
}
