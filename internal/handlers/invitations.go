package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/response"
)

// InvitationHandler lets coaches issue, re-send and withdraw invitations.
type InvitationHandler struct {
	invitations *services.InvitationService
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(invitations *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

type createInvitationRequest struct {
	// Client is the invitee's email address or user id.
	Client  string `json:"client" validate:"required,max=320,email_or_uuid"`
	Message string `json:"message" validate:"omitempty,max=1000"`
}

// POST /api/coach/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, err := h.invitations.CreateInvitation(requestContext(c), services.CreateInvitationInput{
		CoachID: sessionIdentity(c).UserID,
		Client:  req.Client,
		Message: req.Message,
	})
	if err != nil {
		respondError(c, "invitations", err)
		return
	}

	response.Success(c, http.StatusCreated, invitation)
}

// POST /api/coach/invitations/:id/resend
func (h *InvitationHandler) Resend(c *gin.Context) {
	invitation, err := h.invitations.ResendInvitation(requestContext(c), sessionIdentity(c).UserID, c.Param("id"))
	if err != nil {
		respondError(c, "invitations", err)
		return
	}

	response.Success(c, http.StatusOK, invitation)
}

// DELETE /api/coach/invitations/:id
func (h *InvitationHandler) Withdraw(c *gin.Context) {
	rel, err := h.invitations.WithdrawInvitation(requestContext(c), sessionIdentity(c).UserID, c.Param("id"))
	if err != nil {
		respondError(c, "invitations", err)
		return
	}

	response.Success(c, http.StatusOK, rel)
}
