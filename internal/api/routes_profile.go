package api

import (
	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/handlers"
)

func registerProfileRoutes(api *gin.RouterGroup, handler *handlers.ProfileHandler) {
	profile := api.Group("/profile")
	{
		profile.GET("", handler.Get)
		profile.PUT("", handler.Update)
	}
}

func registerCoachProfileRoutes(coach *gin.RouterGroup, handler *handlers.ProfileHandler) {
	coach.POST("/profile", handler.RegisterCoach)
	coach.GET("/profile", handler.GetCoach)
}
