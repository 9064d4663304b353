package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/errors"
	"github.com/nutriplan/nutriplan/pkg/logger"
	"github.com/nutriplan/nutriplan/pkg/response"
)

// CtxAccessKey holds the services.AccessResult computed by RequireClientAccess.
const CtxAccessKey = "clientAccess"

// CoachChecker reports whether a user is on the coach roster.
type CoachChecker interface {
	IsCoach(ctx context.Context, userID string) (bool, error)
}

// AccessVerifier decides whether a caller may read a client's data.
type AccessVerifier interface {
	CheckAccess(ctx context.Context, callerID, clientID string) services.AccessResult
}

// RequireCoach admits only callers present on the coach roster. Others receive 404 so the
// coach routes are indistinguishable from missing ones.
func RequireCoach(checker CoachChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		ok, err := checker.IsCoach(c.Request.Context(), userID)
		if err != nil {
			logger.WithModule("access").Warn("coach lookup failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		if err != nil || !ok {
			response.Error(c, errors.ErrNotFound)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireClientAccess verifies the caller has an accepted relationship with the client named
// by the route parameter. Denials answer 404 and never reveal whether the client exists.
func RequireClientAccess(verifier AccessVerifier, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := c.GetString(CtxUserIDKey)
		if callerID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		result := verifier.CheckAccess(c.Request.Context(), callerID, c.Param(param))
		if !result.HasAccess {
			response.Error(c, errors.ErrNotFound)
			c.Abort()
			return
		}

		c.Set(CtxAccessKey, result)
		c.Next()
	}
}
