package api

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/service"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps service and domain errors onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidationFailed),
		errors.Is(err, domain.ErrUnknownKind):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownFamily):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrWorkoutNotFound),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrGymPlanNotFound),
		errors.Is(err, service.ErrNoImage):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrImageTooLarge):
		abortWithError(c, http.StatusRequestEntityTooLarge, err.Error())
	default:
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		abortWithError(c, http.StatusInternalServerError, "Internal error")
	}
}
