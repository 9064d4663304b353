package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/response"
)

// AuditHandler exposes the caller's own audit trail.
type AuditHandler struct {
	svc *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/coach/activity
func (h *AuditHandler) List(c *gin.Context) {
	filters := services.AuditFilters{
		ActorID: sessionIdentity(c).UserID,
		Action:  strings.TrimSpace(c.Query("action")),
		Limit:   parseIntQuery(c, "limit", 50),
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}

	logs, err := h.svc.List(requestContext(c), filters)
	if err != nil {
		respondError(c, "audit", err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{Total: len(logs), Limit: filters.Limit})
}
