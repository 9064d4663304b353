package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/response"
)

// ApprovalHandler backs the client's approval page.
type ApprovalHandler struct {
	approvals *services.ApprovalService
}

// NewApprovalHandler constructs an ApprovalHandler.
func NewApprovalHandler(approvals *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

// approvalRequest mirrors the approval link parameters. Missing values are reported by the
// service as an invalid link rather than a validation failure.
type approvalRequest struct {
	Token     string `json:"token" form:"token"`
	RequestID string `json:"requestId" form:"requestId"`
	CoachID   string `json:"coachId" form:"coachId"`
}

func (r approvalRequest) input(c *gin.Context) services.ApprovalInput {
	return services.ApprovalInput{
		Token:     r.Token,
		CoachID:   r.CoachID,
		RequestID: r.RequestID,
		Client:    sessionIdentity(c),
	}
}

// GET /api/approvals?token=&requestId=&coachId=
func (h *ApprovalHandler) Preview(c *gin.Context) {
	req := approvalRequest{
		Token:     c.Query("token"),
		RequestID: c.Query("requestId"),
		CoachID:   c.Query("coachId"),
	}

	preview, err := h.approvals.Preview(requestContext(c), req.input(c))
	if err != nil {
		respondError(c, "approvals", err)
		return
	}

	response.Success(c, http.StatusOK, preview)
}

// POST /api/approvals/accept
func (h *ApprovalHandler) Accept(c *gin.Context) {
	var req approvalRequest
	if !bindJSON(c, &req) {
		return
	}

	rel, err := h.approvals.Approve(requestContext(c), req.input(c))
	if err != nil {
		respondError(c, "approvals", err)
		return
	}

	response.Success(c, http.StatusOK, rel)
}

// POST /api/approvals/decline
func (h *ApprovalHandler) Decline(c *gin.Context) {
	var req approvalRequest
	if !bindJSON(c, &req) {
		return
	}

	rel, err := h.approvals.Decline(requestContext(c), req.input(c))
	if err != nil {
		respondError(c, "approvals", err)
		return
	}

	response.Success(c, http.StatusOK, rel)
}
