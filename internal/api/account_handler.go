package api

import (
	"alcyxob/fitness-sync/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves the signed-in user's account and profile.
type AccountHandler struct {
	accountService service.AccountService
}

func NewAccountHandler(accountService service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	subject, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from session")
		return
	}
	account, err := h.accountService.GetAccount(c.Request.Context(), subject)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) SaveAccount(c *gin.Context) {
	subject, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from session")
		return
	}
	var req service.AccountInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	account, err := h.accountService.SaveAccount(c.Request.Context(), subject, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}
