package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/models"
	"github.com/nutriplan/nutriplan/pkg/crypto"
	"github.com/nutriplan/nutriplan/pkg/logger"
	"github.com/nutriplan/nutriplan/pkg/mail"
	"github.com/nutriplan/nutriplan/pkg/metrics"
)

const (
	defaultInvitationExpiry     = 7 * 24 * time.Hour
	defaultInvitationTokenBytes = 32
	maxRequestMessageLength     = 1000
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationBaseURL configures the approval page URL used to build links.
func WithInvitationBaseURL(base string) InvitationOption {
	return func(s *InvitationService) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithInvitationExpiry overrides the approval link lifetime. A negative value disables expiry.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d != 0 {
			s.expiry = d
		}
	}
}

// WithInvitationTokenSize adjusts the random token length in bytes.
func WithInvitationTokenSize(size int) InvitationOption {
	return func(s *InvitationService) {
		if size >= crypto.MinTokenBytes {
			s.tokenLength = size
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithPendingDeduplication rejects a new invitation while an unexpired pending one exists for
// the same coach and invitee.
func WithPendingDeduplication(enabled bool) InvitationOption {
	return func(s *InvitationService) {
		s.deduplicatePending = enabled
	}
}

// WithInvitationAudit records invitation lifecycle events.
func WithInvitationAudit(audit *AuditService) InvitationOption {
	return func(s *InvitationService) {
		s.audit = audit
	}
}

// CreateInvitationInput describes a coach's request to connect with a client.
type CreateInvitationInput struct {
	CoachID string
	// Client is the invitee's email address or user id.
	Client  string
	Message string
}

// Invitation is the result of issuing or re-issuing an approval token. ApprovalToken is the only
// copy of the raw token; the store keeps its digest.
type Invitation struct {
	RequestID     string                          `json:"request_id"`
	ApprovalToken string                          `json:"approval_token"`
	Link          string                          `json:"link"`
	Delivered     bool                            `json:"delivered"`
	Relationship  *models.CoachClientRelationship `json:"relationship"`
}

// InvitationService issues, re-issues and withdraws coach invitations.
type InvitationService struct {
	db                 *gorm.DB
	mailer             mail.Mailer
	audit              *AuditService
	baseURL            string
	expiry             time.Duration
	tokenLength        int
	deduplicatePending bool
	now                func() time.Time
	log                *zap.Logger
}

// NewInvitationService constructs an InvitationService with the provided dependencies. A nil
// mailer disables delivery; links are still returned to the coach.
func NewInvitationService(db *gorm.DB, mailer mail.Mailer, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:          db,
		mailer:      mailer,
		expiry:      defaultInvitationExpiry,
		tokenLength: defaultInvitationTokenBytes,
		now:         time.Now,
		log:         logger.WithModule("invitations"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateInvitation writes a pending relationship for the invitee and delivers the approval link.
// Delivery failures are logged and never undo the stored request.
func (s *InvitationService) CreateInvitation(ctx context.Context, input CreateInvitationInput) (*Invitation, error) {
	ctx = ensureContext(ctx)

	coachID := strings.TrimSpace(input.CoachID)
	target := strings.TrimSpace(input.Client)
	message := strings.TrimSpace(input.Message)
	if coachID == "" {
		return nil, ErrNotCoach
	}
	if target == "" {
		return nil, ErrClientNotFound
	}
	message = truncateRunes(message, maxRequestMessageLength)

	coach, err := s.loadCoach(ctx, coachID)
	if err != nil {
		return nil, err
	}

	rel := &models.CoachClientRelationship{
		CoachID:        coachID,
		Status:         models.RelationshipPending,
		RequestMessage: message,
	}

	if looksLikeEmail(target) {
		rel.ClientEmail = normaliseEmail(target)
	} else {
		var client models.User
		if err := s.db.WithContext(ctx).Where("id = ?", target).First(&client).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrClientNotFound
			}
			return nil, fmt.Errorf("invitation service: load client: %w", err)
		}
		rel.ClientID = stringPtr(client.ID)
		rel.ClientEmail = normaliseEmail(client.Email)
	}

	if rel.ClientID != nil && *rel.ClientID == coachID {
		return nil, ErrSelfInvitation
	}
	if coach.User != nil && rel.ClientEmail == normaliseEmail(coach.User.Email) {
		return nil, ErrSelfInvitation
	}

	now := s.now()
	if s.deduplicatePending {
		pending, err := s.hasPendingInvitation(ctx, coachID, rel.ClientEmail, now)
		if err != nil {
			return nil, err
		}
		if pending {
			return nil, ErrInvitationAlreadyPending
		}
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	rel.TokenHash = crypto.HashToken(rawToken)
	rel.RequestedAt = now
	rel.ExpiresAt = s.deadline(now)

	if err := s.db.WithContext(ctx).Create(rel).Error; err != nil {
		return nil, fmt.Errorf("invitation service: create invitation: %w", err)
	}
	metrics.InvitationsIssued.WithLabelValues("new").Inc()

	invitation := &Invitation{
		RequestID:     rel.ID,
		ApprovalToken: rawToken,
		Link:          s.approvalLink(rawToken, rel.ID, coachID),
		Relationship:  rel,
	}
	invitation.Delivered = s.deliver(ctx, coach, rel, invitation.Link)

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  coachID,
		Action:   AuditInvitationCreated,
		Resource: "relationship:" + rel.ID,
		Result:   "success",
		Metadata: map[string]any{"client_email": rel.ClientEmail, "delivered": invitation.Delivered},
	})

	return invitation, nil
}

// ResendInvitation rotates the token of a pending invitation, refreshes its deadline and
// delivers the new link. Links issued earlier stop working.
func (s *InvitationService) ResendInvitation(ctx context.Context, coachID, requestID string) (*Invitation, error) {
	ctx = ensureContext(ctx)

	rel, err := s.loadOwned(ctx, coachID, requestID)
	if err != nil {
		return nil, err
	}
	if rel.Status != models.RelationshipPending {
		return nil, ErrAlreadyProcessed
	}

	coach, err := s.loadCoach(ctx, rel.CoachID)
	if err != nil {
		return nil, err
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	digest := crypto.HashToken(rawToken)
	deadline := s.deadline(now)

	result := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("id = ? AND status = ?", rel.ID, models.RelationshipPending).
		Updates(map[string]any{
			"token_hash": digest,
			"expires_at": deadline,
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: rotate token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}
	metrics.InvitationsIssued.WithLabelValues("resend").Inc()

	rel.TokenHash = digest
	rel.ExpiresAt = deadline
	rel.UpdatedAt = now

	invitation := &Invitation{
		RequestID:     rel.ID,
		ApprovalToken: rawToken,
		Link:          s.approvalLink(rawToken, rel.ID, rel.CoachID),
		Relationship:  rel,
	}
	invitation.Delivered = s.deliver(ctx, coach, rel, invitation.Link)

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  rel.CoachID,
		Action:   AuditInvitationResent,
		Resource: "relationship:" + rel.ID,
		Result:   "success",
	})

	return invitation, nil
}

// WithdrawInvitation lets the issuing coach close a pending invitation before the client decides.
func (s *InvitationService) WithdrawInvitation(ctx context.Context, coachID, requestID string) (*models.CoachClientRelationship, error) {
	ctx = ensureContext(ctx)

	rel, err := s.loadOwned(ctx, coachID, requestID)
	if err != nil {
		return nil, err
	}
	if rel.Status != models.RelationshipPending {
		return nil, ErrAlreadyProcessed
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("id = ? AND status = ?", rel.ID, models.RelationshipPending).
		Updates(map[string]any{
			"status":          models.RelationshipDeclined,
			"decision_reason": models.ReasonCoachWithdrew,
			"decided_at":      now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: withdraw invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}

	rel.Status = models.RelationshipDeclined
	rel.DecisionReason = models.ReasonCoachWithdrew
	rel.DecidedAt = &now
	rel.UpdatedAt = now

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  rel.CoachID,
		Action:   AuditInvitationWithdrawn,
		Resource: "relationship:" + rel.ID,
		Result:   "success",
	})

	return rel, nil
}

func (s *InvitationService) loadCoach(ctx context.Context, coachID string) (*models.Coach, error) {
	var coach models.Coach
	if err := s.db.WithContext(ctx).Preload("User").Where("user_id = ?", coachID).First(&coach).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotCoach
		}
		return nil, fmt.Errorf("invitation service: load coach: %w", err)
	}
	return &coach, nil
}

func (s *InvitationService) loadOwned(ctx context.Context, coachID, requestID string) (*models.CoachClientRelationship, error) {
	coachID = strings.TrimSpace(coachID)
	requestID = strings.TrimSpace(requestID)
	if coachID == "" || requestID == "" {
		return nil, ErrInvitationNotFound
	}

	var rel models.CoachClientRelationship
	if err := s.db.WithContext(ctx).
		Where("id = ? AND coach_id = ?", requestID, coachID).
		First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation service: load invitation: %w", err)
	}
	return &rel, nil
}

func (s *InvitationService) hasPendingInvitation(ctx context.Context, coachID, email string, now time.Time) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("coach_id = ? AND client_email = ? AND status = ?", coachID, email, models.RelationshipPending).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("invitation service: check pending: %w", err)
	}
	return count > 0, nil
}

func (s *InvitationService) deadline(now time.Time) *time.Time {
	if s.expiry <= 0 {
		return nil
	}
	deadline := now.Add(s.expiry)
	return &deadline
}

func (s *InvitationService) approvalLink(token, requestID, coachID string) string {
	query := url.Values{}
	query.Set("token", token)
	query.Set("requestId", requestID)
	query.Set("coachId", coachID)
	if s.baseURL == "" {
		return "?" + query.Encode()
	}
	return s.baseURL + "?" + query.Encode()
}

func (s *InvitationService) deliver(ctx context.Context, coach *models.Coach, rel *models.CoachClientRelationship, link string) bool {
	if s.mailer == nil {
		return false
	}

	coachName := "Your coach"
	replyTo := ""
	if coach.User != nil {
		coachName = coach.User.DisplayName()
		replyTo = coach.User.Email
	}

	err := s.mailer.Send(ctx, mail.Message{
		ReplyTo: replyTo,
		To:      []string{rel.ClientEmail},
		Subject: fmt.Sprintf("%s wants to be your NutriPlan coach", coachName),
		Body:    s.invitationBody(coachName, rel, link),
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, mail.ErrSMTPDisabled):
		s.log.Debug("invitation email skipped; smtp disabled", zap.String("request_id", rel.ID))
		return false
	default:
		metrics.InvitationDeliveryFailures.Inc()
		s.log.Warn("invitation email failed",
			zap.String("request_id", rel.ID),
			zap.String("coach_id", rel.CoachID),
			zap.Error(err),
		)
		return false
	}
}

func (s *InvitationService) invitationBody(coachName string, rel *models.CoachClientRelationship, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\n%s would like to coach you on NutriPlan and view your nutrition plans.\n", coachName)
	if rel.RequestMessage != "" {
		fmt.Fprintf(&b, "\nMessage from your coach:\n%s\n", rel.RequestMessage)
	}
	fmt.Fprintf(&b, "\nReview the request here:\n%s\n", link)
	if rel.ExpiresAt != nil {
		fmt.Fprintf(&b, "\nThis link expires on %s.\n", rel.ExpiresAt.UTC().Format("2 Jan 2006 15:04 MST"))
	}
	b.WriteString("\nIf you did not expect this email, you can ignore it.\n")
	return b.String()
}
