package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/models"
	"github.com/nutriplan/nutriplan/pkg/crypto"
	apperrors "github.com/nutriplan/nutriplan/pkg/errors"
	"github.com/nutriplan/nutriplan/pkg/logger"
	"github.com/nutriplan/nutriplan/pkg/metrics"
)

const (
	approvalActionAccept  = "accept"
	approvalActionDecline = "decline"
	approvalActionPreview = "preview"
)

// ApprovalOption customises ApprovalService behaviour.
type ApprovalOption func(*ApprovalService)

// WithApprovalClock injects a custom clock primarily for testing.
func WithApprovalClock(clock func() time.Time) ApprovalOption {
	return func(s *ApprovalService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithApprovalAudit records client decisions.
func WithApprovalAudit(audit *AuditService) ApprovalOption {
	return func(s *ApprovalService) {
		s.audit = audit
	}
}

// ApprovalInput carries the three link parameters and the signed-in client acting on them.
type ApprovalInput struct {
	Token     string
	CoachID   string
	RequestID string
	Client    Identity
}

// CoachSummary is the public view of a coach shown to clients.
type CoachSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Certification   string `json:"certification,omitempty"`
	Description     string `json:"description,omitempty"`
	YearsExperience int    `json:"years_experience"`
}

// ApprovalPreview is what the approval page renders before the client decides.
type ApprovalPreview struct {
	RequestID   string       `json:"request_id"`
	Coach       CoachSummary `json:"coach"`
	Message     string       `json:"message,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

// ApprovalService validates approval links and records the client's decision.
type ApprovalService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
	log   *zap.Logger
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(db *gorm.DB, opts ...ApprovalOption) (*ApprovalService, error) {
	if db == nil {
		return nil, errors.New("approval service: db is required")
	}

	service := &ApprovalService{
		db:  db,
		now: time.Now,
		log: logger.WithModule("approvals"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Preview validates the link for the signed-in client without changing anything.
func (s *ApprovalService) Preview(ctx context.Context, input ApprovalInput) (*ApprovalPreview, error) {
	ctx = ensureContext(ctx)

	rel, err := s.verify(ctx, input, s.now())
	if err != nil {
		s.observe(approvalActionPreview, err)
		return nil, err
	}

	preview := &ApprovalPreview{
		RequestID:   rel.ID,
		Message:     rel.RequestMessage,
		RequestedAt: rel.RequestedAt,
		ExpiresAt:   rel.ExpiresAt,
	}

	var coach models.Coach
	err = s.db.WithContext(ctx).Preload("User").Where("user_id = ?", rel.CoachID).First(&coach).Error
	switch {
	case err == nil:
		preview.Coach = summariseCoach(&coach)
	case errors.Is(err, gorm.ErrRecordNotFound):
		preview.Coach = CoachSummary{ID: rel.CoachID}
	default:
		return nil, fmt.Errorf("approval service: load coach: %w", err)
	}

	s.observe(approvalActionPreview, nil)
	return preview, nil
}

// Approve accepts a pending invitation on behalf of the signed-in client. The transition is a
// conditional update so that concurrent approvals of the same request commit at most once.
func (s *ApprovalService) Approve(ctx context.Context, input ApprovalInput) (*models.CoachClientRelationship, error) {
	ctx = ensureContext(ctx)

	rel, err := s.approve(ctx, input)
	s.observe(approvalActionAccept, err)
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  input.Client.UserID,
		Action:   AuditInvitationAccepted,
		Resource: "relationship:" + rel.ID,
		Result:   "success",
		Metadata: map[string]any{"coach_id": rel.CoachID},
	})
	return rel, nil
}

// Decline rejects a pending invitation on behalf of the signed-in client.
func (s *ApprovalService) Decline(ctx context.Context, input ApprovalInput) (*models.CoachClientRelationship, error) {
	ctx = ensureContext(ctx)

	rel, err := s.decline(ctx, input)
	s.observe(approvalActionDecline, err)
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  input.Client.UserID,
		Action:   AuditInvitationDeclined,
		Resource: "relationship:" + rel.ID,
		Result:   "success",
		Metadata: map[string]any{"coach_id": rel.CoachID},
	})
	return rel, nil
}

func (s *ApprovalService) approve(ctx context.Context, input ApprovalInput) (*models.CoachClientRelationship, error) {
	now := s.now()

	rel, err := s.verify(ctx, input, now)
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(input.Client.UserID)

	var accepted int64
	if err := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("coach_id = ? AND client_id = ? AND status = ? AND id <> ?", rel.CoachID, clientID, models.RelationshipAccepted, rel.ID).
		Count(&accepted).Error; err != nil {
		return nil, fmt.Errorf("approval service: duplicate check: %w", err)
	}
	if accepted > 0 {
		return nil, ErrRelationshipAlreadyExists
	}

	pair := models.ActivePairKey(rel.CoachID, clientID)
	result := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("id = ? AND status = ?", rel.ID, models.RelationshipPending).
		Updates(map[string]any{
			"status":      models.RelationshipAccepted,
			"client_id":   clientID,
			"decided_at":  now,
			"active_pair": pair,
			"updated_at":  now,
		})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return nil, ErrRelationshipAlreadyExists
		}
		return nil, fmt.Errorf("approval service: accept request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}

	rel.Status = models.RelationshipAccepted
	rel.ClientID = stringPtr(clientID)
	rel.DecidedAt = &now
	rel.ActivePair = &pair
	rel.UpdatedAt = now
	return rel, nil
}

func (s *ApprovalService) decline(ctx context.Context, input ApprovalInput) (*models.CoachClientRelationship, error) {
	now := s.now()

	rel, err := s.verify(ctx, input, now)
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(input.Client.UserID)
	result := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("id = ? AND status = ?", rel.ID, models.RelationshipPending).
		Updates(map[string]any{
			"status":          models.RelationshipDeclined,
			"client_id":       clientID,
			"decided_at":      now,
			"decision_reason": models.ReasonClientDeclined,
			"updated_at":      now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("approval service: decline request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}

	rel.Status = models.RelationshipDeclined
	rel.ClientID = stringPtr(clientID)
	rel.DecidedAt = &now
	rel.DecisionReason = models.ReasonClientDeclined
	rel.UpdatedAt = now
	return rel, nil
}

// verify resolves the request named by the link and checks it may be decided by the client.
// Missing or malformed parameters are rejected before the store is queried.
func (s *ApprovalService) verify(ctx context.Context, input ApprovalInput, now time.Time) (*models.CoachClientRelationship, error) {
	token := strings.TrimSpace(input.Token)
	coachID := strings.TrimSpace(input.CoachID)
	requestID := strings.TrimSpace(input.RequestID)
	if token == "" || coachID == "" || requestID == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	if _, err := uuid.Parse(coachID); err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	clientID := strings.TrimSpace(input.Client.UserID)
	if clientID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	var rel models.CoachClientRelationship
	err := s.db.WithContext(ctx).
		Where("id = ? AND coach_id = ? AND token_hash = ?", requestID, coachID, crypto.HashToken(token)).
		First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("approval service: load request: %w", err)
	}

	if rel.Status == models.RelationshipDeclined && rel.DecisionReason == models.ReasonExpired {
		return nil, ErrInvalidOrExpiredToken
	}
	if rel.Status != models.RelationshipPending {
		return nil, ErrAlreadyProcessed
	}
	if rel.Expired(now) {
		return nil, ErrInvalidOrExpiredToken
	}
	if clientID == rel.CoachID {
		return nil, ErrSelfInvitation
	}
	if !isInvitee(&rel, input.Client) {
		return nil, ErrRecipientMismatch
	}

	return &rel, nil
}

func isInvitee(rel *models.CoachClientRelationship, client Identity) bool {
	if rel.ClientID != nil && *rel.ClientID != "" {
		return *rel.ClientID == strings.TrimSpace(client.UserID)
	}
	email := normaliseEmail(client.Email)
	return email != "" && email == normaliseEmail(rel.ClientEmail)
}

func (s *ApprovalService) observe(action string, err error) {
	outcome := approvalOutcome(err)
	metrics.ApprovalOutcomes.WithLabelValues(action, outcome).Inc()
	if outcome == "error" {
		s.log.Error("approval failed", zap.String("action", action), zap.Error(err))
	}
}

func approvalOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

func summariseCoach(coach *models.Coach) CoachSummary {
	summary := CoachSummary{
		ID:              coach.UserID,
		Certification:   coach.Certification,
		Description:     coach.Description,
		YearsExperience: coach.YearsExperience,
	}
	if coach.User != nil {
		summary.Name = coach.User.DisplayName()
		summary.Email = coach.User.Email
	}
	return summary
}
