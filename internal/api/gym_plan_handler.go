package api

import (
	"alcyxob/fitness-sync/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GymPlanHandler holds the gym plan service dependency.
type GymPlanHandler struct {
	gymPlanService service.GymPlanService
}

func NewGymPlanHandler(gymPlanService service.GymPlanService) *GymPlanHandler {
	return &GymPlanHandler{gymPlanService: gymPlanService}
}

func (h *GymPlanHandler) CreatePlan(c *gin.Context) {
	var req service.GymPlanInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	plan, err := h.gymPlanService.CreatePlan(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *GymPlanHandler) ListPlans(c *gin.Context) {
	plans, err := h.gymPlanService.ListPlans(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (h *GymPlanHandler) GetPlan(c *gin.Context) {
	plan, err := h.gymPlanService.GetPlan(c.Request.Context(), c.Param("localId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *GymPlanHandler) UpdatePlan(c *gin.Context) {
	var req service.GymPlanInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	plan, err := h.gymPlanService.UpdatePlan(c.Request.Context(), c.Param("localId"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *GymPlanHandler) DeletePlan(c *gin.Context) {
	if err := h.gymPlanService.DeletePlan(c.Request.Context(), c.Param("localId")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
