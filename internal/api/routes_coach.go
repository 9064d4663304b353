package api

import (
	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/handlers"
	"github.com/nutriplan/nutriplan/internal/middleware"
)

func registerInvitationRoutes(coach *gin.RouterGroup, handler *handlers.InvitationHandler) {
	invitations := coach.Group("/invitations")
	{
		invitations.POST("", handler.Create)
		invitations.POST("/:id/resend", handler.Resend)
		invitations.DELETE("/:id", handler.Withdraw)
	}
}

func registerRequestRoutes(coach *gin.RouterGroup, handler *handlers.RequestHandler) {
	requests := coach.Group("/requests")
	{
		requests.GET("", handler.List)
		requests.GET("/recent", handler.Recent)
		requests.GET("/stats", handler.Stats)
	}
}

func registerClientRoutes(coach *gin.RouterGroup, handler *handlers.ClientHandler, verifier middleware.AccessVerifier) {
	clients := coach.Group("/clients")
	{
		clients.GET("", handler.List)
		clients.GET("/:clientId", middleware.RequireClientAccess(verifier, "clientId"), handler.Get)
		clients.DELETE("/:clientId", handler.Revoke)
	}
}
