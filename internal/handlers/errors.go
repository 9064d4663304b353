package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nutriplan/nutriplan/pkg/logger"
	"github.com/nutriplan/nutriplan/pkg/response"

	appErrors "github.com/nutriplan/nutriplan/pkg/errors"
)

// respondError writes err to the client. Errors that are not AppErrors are logged and
// answered with a generic 500 so store details never leak.
func respondError(c *gin.Context, module string, err error) {
	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		logger.WithModule(module).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
	response.Error(c, err)
}
