package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/middleware"
	"github.com/nutriplan/nutriplan/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// sessionIdentity returns the caller as established by the auth middleware. Identity is never
// read from request parameters.
func sessionIdentity(c *gin.Context) services.Identity {
	return services.Identity{
		UserID: c.GetString(middleware.CtxUserIDKey),
		Email:  c.GetString(middleware.CtxEmailKey),
	}
}
