package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/response"
)

// ClientHandler serves accepted relationships from both sides.
type ClientHandler struct {
	relationships *services.RelationshipService
	access        *services.AccessService
}

// NewClientHandler constructs a ClientHandler.
func NewClientHandler(relationships *services.RelationshipService, access *services.AccessService) *ClientHandler {
	return &ClientHandler{relationships: relationships, access: access}
}

// GET /api/coach/clients
func (h *ClientHandler) List(c *gin.Context) {
	clients, err := h.relationships.ListClients(requestContext(c), sessionIdentity(c).UserID)
	if err != nil {
		respondError(c, "clients", err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, clients, &response.Meta{Total: len(clients)})
}

// GET /api/coach/clients/:clientId
func (h *ClientHandler) Get(c *gin.Context) {
	client, err := h.relationships.GetClient(requestContext(c), sessionIdentity(c).UserID, c.Param("clientId"))
	if err != nil {
		respondError(c, "clients", err)
		return
	}

	response.Success(c, http.StatusOK, client)
}

// DELETE /api/coach/clients/:clientId
func (h *ClientHandler) Revoke(c *gin.Context) {
	rel, err := h.relationships.Revoke(requestContext(c), sessionIdentity(c).UserID, c.Param("clientId"))
	if err != nil {
		respondError(c, "clients", err)
		return
	}

	response.Success(c, http.StatusOK, rel)
}

// GET /api/access/:clientId
func (h *ClientHandler) CheckAccess(c *gin.Context) {
	result := h.access.CheckAccess(requestContext(c), sessionIdentity(c).UserID, c.Param("clientId"))
	response.Success(c, http.StatusOK, result)
}

// GET /api/me/coaches
func (h *ClientHandler) MyCoaches(c *gin.Context) {
	coaches, err := h.relationships.ListCoachesForClient(requestContext(c), sessionIdentity(c).UserID)
	if err != nil {
		respondError(c, "clients", err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, coaches, &response.Meta{Total: len(coaches)})
}
