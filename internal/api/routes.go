package api

import (
	"alcyxob/fitness-sync/internal/auth"
	"alcyxob/fitness-sync/internal/events"
	"alcyxob/fitness-sync/internal/service"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies bundles everything the control API needs.
type Dependencies struct {
	Logger         *log.Logger
	Sessions       *auth.Provider
	Sync           Syncer
	Events         *events.Bus
	WorkoutService service.WorkoutService
	AccountService service.AccountService
	GymPlanService service.GymPlanService
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if deps.Logger != nil {
		router.Use(RequestLogger(deps.Logger))
	}

	sessionHandler := NewSessionHandler(deps.Sessions, deps.Sync)
	syncHandler := NewSyncHandler(deps.Sync, deps.Events)
	workoutHandler := NewWorkoutHandler(deps.WorkoutService)
	accountHandler := NewAccountHandler(deps.AccountService)
	gymPlanHandler := NewGymPlanHandler(deps.GymPlanService)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/session", sessionHandler.StartSession)
		apiV1.DELETE("/session", sessionHandler.EndSession)

		lifecycle := apiV1.Group("/lifecycle")
		{
			lifecycle.POST("/launch", syncHandler.Launch)
			lifecycle.POST("/foreground", syncHandler.Foreground)
		}

		syncGroup := apiV1.Group("/sync")
		{
			syncGroup.POST("/kick", syncHandler.Kick)
			syncGroup.POST("/pull", syncHandler.Pull)
			syncGroup.GET("/status", syncHandler.Status)
			syncGroup.POST("/reset", syncHandler.Reset)
			syncGroup.GET("/events", syncHandler.Events)
			// POST /api/v1/sync/families/{family}/suspend
			syncGroup.POST("/families/:family/suspend", syncHandler.Suspend)
			syncGroup.POST("/families/:family/resume", syncHandler.Resume)
		}

		// --- Workout Routes ---
		// Recording works signed out; uploads wait for a session.
		workoutGroup := apiV1.Group("/workouts")
		{
			workoutGroup.POST("", workoutHandler.CreateWorkout)
			workoutGroup.GET("", workoutHandler.ListWorkouts)
			workoutGroup.GET("/:localId", workoutHandler.GetWorkout)
			workoutGroup.PATCH("/:localId", workoutHandler.UpdateWorkout)
			workoutGroup.DELETE("/:localId", workoutHandler.DeleteWorkout)
			workoutGroup.PUT("/:localId/image", workoutHandler.PutImage)
			workoutGroup.GET("/:localId/image", workoutHandler.GetImageURL)
		}

		accountGroup := apiV1.Group("/account")
		accountGroup.Use(RequireSession(deps.Sessions))
		{
			accountGroup.GET("", accountHandler.GetAccount)
			accountGroup.PUT("", accountHandler.SaveAccount)
		}

		gymPlanGroup := apiV1.Group("/gym-plans")
		{
			gymPlanGroup.POST("", gymPlanHandler.CreatePlan)
			gymPlanGroup.GET("", gymPlanHandler.ListPlans)
			gymPlanGroup.GET("/:localId", gymPlanHandler.GetPlan)
			gymPlanGroup.PUT("/:localId", gymPlanHandler.UpdatePlan)
			gymPlanGroup.DELETE("/:localId", gymPlanHandler.DeletePlan)
		}
	}
}
