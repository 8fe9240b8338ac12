package api

import (
	"alcyxob/fitness-sync/internal/domain"
	"alcyxob/fitness-sync/internal/service"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// WorkoutHandler holds the workout service dependency.
type WorkoutHandler struct {
	workoutService service.WorkoutService
}

// NewWorkoutHandler creates a new WorkoutHandler.
func NewWorkoutHandler(workoutService service.WorkoutService) *WorkoutHandler {
	return &WorkoutHandler{workoutService: workoutService}
}

// WorkoutResponse is the DTO the app shell renders from.
type WorkoutResponse struct {
	LocalID         string             `json:"localId"`
	RemoteID        *string            `json:"remoteId,omitempty"`
	IsDirty         bool               `json:"isDirty"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	Kind            domain.WorkoutKind `json:"kind"`
	Name            string             `json:"name"`
	StartedAt       time.Time          `json:"startedAt"`
	DurationSeconds float64            `json:"durationSeconds"`
	Notes           string             `json:"notes,omitempty"`
	CaloriesKcal    int                `json:"caloriesKcal,omitempty"`
	Stats           json.RawMessage    `json:"stats,omitempty"`
	HasImage        bool               `json:"hasImage"`
	ImagePending    bool               `json:"imagePending"`
	ImageURL        string             `json:"imageUrl,omitempty"`
}

// MapWorkoutToResponse converts a domain.Workout to WorkoutResponse DTO.
func MapWorkoutToResponse(w *domain.Workout) WorkoutResponse {
	if w == nil {
		return WorkoutResponse{}
	}
	return WorkoutResponse{
		LocalID:         w.LocalID,
		RemoteID:        w.RemoteID,
		IsDirty:         w.IsDirty,
		UpdatedAt:       w.UpdatedAt,
		Kind:            w.Kind,
		Name:            w.Name,
		StartedAt:       w.StartedAt,
		DurationSeconds: w.Duration.Seconds(),
		Notes:           w.Notes,
		CaloriesKcal:    w.CaloriesKcal,
		Stats:           json.RawMessage(w.StatsRaw),
		HasImage:        len(w.Image) > 0,
		ImagePending:    w.AssetPending,
		ImageURL:        w.ImageURL,
	}
}

func MapWorkoutsToResponse(workouts []*domain.Workout) []WorkoutResponse {
	responses := make([]WorkoutResponse, len(workouts))
	for i, w := range workouts {
		responses[i] = MapWorkoutToResponse(w)
	}
	return responses
}

// CreateWorkout handles POST /api/v1/workouts
func (h *WorkoutHandler) CreateWorkout(c *gin.Context) {
	var req service.WorkoutInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	workout, err := h.workoutService.RecordWorkout(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapWorkoutToResponse(workout))
}

// ListWorkouts handles GET /api/v1/workouts
func (h *WorkoutHandler) ListWorkouts(c *gin.Context) {
	workouts, err := h.workoutService.ListWorkouts(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapWorkoutsToResponse(workouts))
}

func (h *WorkoutHandler) GetWorkout(c *gin.Context) {
	workout, err := h.workoutService.GetWorkout(c.Request.Context(), c.Param("localId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapWorkoutToResponse(workout))
}

func (h *WorkoutHandler) UpdateWorkout(c *gin.Context) {
	var req service.WorkoutPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	workout, err := h.workoutService.UpdateWorkout(c.Request.Context(), c.Param("localId"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapWorkoutToResponse(workout))
}

func (h *WorkoutHandler) DeleteWorkout(c *gin.Context) {
	if err := h.workoutService.DeleteWorkout(c.Request.Context(), c.Param("localId")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PutImage handles PUT /api/v1/workouts/:localId/image with the raw image as body.
func (h *WorkoutHandler) PutImage(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, service.MaxImageBytes+1))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Failed to read image")
		return
	}
	workout, err := h.workoutService.AttachImage(c.Request.Context(), c.Param("localId"), data, c.ContentType())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapWorkoutToResponse(workout))
}

// GetImageURL returns a temporary download URL for an uploaded image.
func (h *WorkoutHandler) GetImageURL(c *gin.Context) {
	url, err := h.workoutService.ImageDownloadURL(c.Request.Context(), c.Param("localId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
