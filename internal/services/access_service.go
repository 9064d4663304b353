package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/models"
	"github.com/nutriplan/nutriplan/pkg/logger"
	"github.com/nutriplan/nutriplan/pkg/metrics"
)

// AccessResult reports whether a caller may act on a client's data as that client's coach.
type AccessResult struct {
	HasAccess bool   `json:"has_access"`
	IsCoach   bool   `json:"is_coach"`
	CoachID   string `json:"coach_id,omitempty"`
}

// AccessService decides coach-to-client authorisation from the relationship store.
type AccessService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAccessService constructs an AccessService.
func NewAccessService(db *gorm.DB) (*AccessService, error) {
	if db == nil {
		return nil, errors.New("access service: db is required")
	}
	return &AccessService{db: db, log: logger.WithModule("access")}, nil
}

// IsCoach reports whether userID is on the coach roster.
func (s *AccessService) IsCoach(ctx context.Context, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Coach{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("access service: coach lookup: %w", err)
	}
	return count > 0, nil
}

// CheckAccess grants access iff callerID is a coach with an accepted relationship to clientID.
// It never returns an error: lookup failures are logged, counted and treated as no access.
func (s *AccessService) CheckAccess(ctx context.Context, callerID, clientID string) AccessResult {
	ctx = ensureContext(ctx)

	callerID = strings.TrimSpace(callerID)
	clientID = strings.TrimSpace(clientID)
	if callerID == "" {
		metrics.AccessChecks.WithLabelValues("denied").Inc()
		return AccessResult{}
	}

	isCoach, err := s.IsCoach(ctx, callerID)
	if err != nil {
		s.fail(callerID, clientID, err)
		return AccessResult{}
	}
	if !isCoach {
		metrics.AccessChecks.WithLabelValues("denied").Inc()
		return AccessResult{}
	}

	result := AccessResult{IsCoach: true, CoachID: callerID}
	if clientID == "" {
		metrics.AccessChecks.WithLabelValues("denied").Inc()
		return result
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("coach_id = ? AND client_id = ? AND status = ?", callerID, clientID, models.RelationshipAccepted).
		Count(&count).Error; err != nil {
		s.fail(callerID, clientID, err)
		return result
	}

	result.HasAccess = count > 0
	if result.HasAccess {
		metrics.AccessChecks.WithLabelValues("granted").Inc()
	} else {
		metrics.AccessChecks.WithLabelValues("denied").Inc()
	}
	return result
}

// ListClientIDs returns the ids of every client with an accepted relationship to coachID.
func (s *AccessService) ListClientIDs(ctx context.Context, coachID string) ([]string, error) {
	ctx = ensureContext(ctx)

	coachID = strings.TrimSpace(coachID)
	if coachID == "" {
		return nil, nil
	}

	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("coach_id = ? AND status = ? AND client_id IS NOT NULL", coachID, models.RelationshipAccepted).
		Order("decided_at DESC").
		Pluck("client_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("access service: list client ids: %w", err)
	}
	return ids, nil
}

func (s *AccessService) fail(callerID, clientID string, err error) {
	metrics.AccessChecks.WithLabelValues("error").Inc()
	s.log.Error("access check failed; denying",
		zap.String("caller_id", callerID),
		zap.String("client_id", clientID),
		zap.Error(err),
	)
}
