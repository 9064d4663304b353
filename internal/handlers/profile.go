package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/response"
)

// ProfileHandler exposes the caller's profile and coach registration.
type ProfileHandler struct {
	profiles *services.ProfileService
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type updateProfileRequest struct {
	FullName string `json:"full_name" validate:"omitempty,notblank,max=255"`
}

type registerCoachRequest struct {
	Certification   string `json:"certification" validate:"omitempty,max=255"`
	Description     string `json:"description" validate:"omitempty,max=4000"`
	YearsExperience int    `json:"years_experience" validate:"min=0,max=80"`
}

// GET /api/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	identity := sessionIdentity(c)

	user, err := h.profiles.GetProfile(requestContext(c), identity.UserID)
	if err != nil {
		respondError(c, "profile", err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// PUT /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.profiles.UpsertProfile(requestContext(c), sessionIdentity(c), req.FullName)
	if err != nil {
		respondError(c, "profile", err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// POST /api/coach/profile
func (h *ProfileHandler) RegisterCoach(c *gin.Context) {
	var req registerCoachRequest
	if !bindAndValidate(c, &req) {
		return
	}

	coach, err := h.profiles.RegisterCoach(requestContext(c), sessionIdentity(c), services.CoachProfileInput{
		Certification:   req.Certification,
		Description:     req.Description,
		YearsExperience: req.YearsExperience,
	})
	if err != nil {
		respondError(c, "profile", err)
		return
	}

	response.Success(c, http.StatusCreated, coach)
}

// GET /api/coach/profile
func (h *ProfileHandler) GetCoach(c *gin.Context) {
	coach, err := h.profiles.GetCoach(requestContext(c), sessionIdentity(c).UserID)
	if err != nil {
		respondError(c, "profile", err)
		return
	}

	response.Success(c, http.StatusOK, coach)
}
