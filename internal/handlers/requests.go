package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/response"
)

// RequestHandler serves a coach's invitation history.
type RequestHandler struct {
	requests *services.RequestService
}

// NewRequestHandler constructs a RequestHandler.
func NewRequestHandler(requests *services.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// GET /api/coach/requests?status=&limit=
func (h *RequestHandler) List(c *gin.Context) {
	filter := services.RequestFilter{
		Status: c.Query("status"),
		Limit:  parseIntQuery(c, "limit", 0),
	}

	items, err := h.requests.ListRequests(requestContext(c), sessionIdentity(c).UserID, filter)
	if err != nil {
		respondError(c, "requests", err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Total:  len(items),
		Limit:  filter.Limit,
		Status: filter.Status,
	})
}

// GET /api/coach/requests/recent
func (h *RequestHandler) Recent(c *gin.Context) {
	items, err := h.requests.RecentRequests(requestContext(c), sessionIdentity(c).UserID, parseIntQuery(c, "limit", 0))
	if err != nil {
		respondError(c, "requests", err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// GET /api/coach/requests/stats
func (h *RequestHandler) Stats(c *gin.Context) {
	stats, err := h.requests.Stats(requestContext(c), sessionIdentity(c).UserID)
	if err != nil {
		respondError(c, "requests", err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}
