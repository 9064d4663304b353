package api

import (
	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/handlers"
)

func registerApprovalRoutes(approvals *gin.RouterGroup, handler *handlers.ApprovalHandler) {
	approvals.GET("", handler.Preview)
	approvals.POST("/accept", handler.Accept)
	approvals.POST("/decline", handler.Decline)
}
