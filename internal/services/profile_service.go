package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nutriplan/nutriplan/internal/models"
	apperrors "github.com/nutriplan/nutriplan/pkg/errors"
)

// CoachProfileInput describes the fields a user supplies when registering as a coach.
type CoachProfileInput struct {
	Certification   string
	Description     string
	YearsExperience int
}

// ProfileService mirrors authenticated accounts locally and manages the coach roster.
type ProfileService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewProfileService constructs a ProfileService. audit may be nil.
func NewProfileService(db *gorm.DB, audit *AuditService) (*ProfileService, error) {
	if db == nil {
		return nil, errors.New("profile service: db is required")
	}
	return &ProfileService{db: db, audit: audit, now: time.Now}, nil
}

// UpsertProfile stores the caller's profile keyed by the session identity. An empty fullName
// keeps the stored name.
func (s *ProfileService) UpsertProfile(ctx context.Context, identity Identity, fullName string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.upsert(ctx, identity, strings.TrimSpace(fullName))
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetProfile returns the stored profile of userID.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(userID)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("profile service: load profile: %w", err)
	}
	return &user, nil
}

// RegisterCoach adds the caller to the coach roster, creating their profile when missing.
func (s *ProfileService) RegisterCoach(ctx context.Context, identity Identity, input CoachProfileInput) (*CoachSummary, error) {
	ctx = ensureContext(ctx)

	user, err := s.upsert(ctx, identity, "")
	if err != nil {
		return nil, err
	}

	years := input.YearsExperience
	if years < 0 {
		years = 0
	}

	coach := models.Coach{
		UserID:          user.ID,
		Certification:   strings.TrimSpace(input.Certification),
		Description:     strings.TrimSpace(input.Description),
		YearsExperience: years,
		JoinedAt:        s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&coach).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrAlreadyCoach
		}
		return nil, fmt.Errorf("profile service: create coach: %w", err)
	}
	coach.User = user

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  user.ID,
		Action:   AuditCoachRegistered,
		Resource: "coach:" + user.ID,
		Result:   "success",
	})

	summary := summariseCoach(&coach)
	return &summary, nil
}

// GetCoach returns the coach profile of userID, or ErrNotCoach.
func (s *ProfileService) GetCoach(ctx context.Context, userID string) (*CoachSummary, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrNotCoach
	}

	var coach models.Coach
	if err := s.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&coach).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotCoach
		}
		return nil, fmt.Errorf("profile service: load coach: %w", err)
	}

	summary := summariseCoach(&coach)
	return &summary, nil
}

func (s *ProfileService) upsert(ctx context.Context, identity Identity, fullName string) (*models.User, error) {
	userID := strings.TrimSpace(identity.UserID)
	email := normaliseEmail(identity.Email)
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("An email address is required")
	}

	user := models.User{ID: userID, Email: email, FullName: fullName}
	updates := []string{"email", "updated_at"}
	if fullName != "" {
		updates = append(updates, "full_name")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&user).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("profile service: upsert profile: %w", err)
	}

	var stored models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("profile service: reload profile: %w", err)
	}
	return &stored, nil
}
