package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/models"
)

// ClientSummary is a coach's view of one accepted client.
type ClientSummary struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	RelationshipID string    `json:"relationship_id"`
	ConnectedAt    time.Time `json:"connected_at"`
}

// CoachConnection is a client's view of one coach they accepted.
type CoachConnection struct {
	Coach          CoachSummary `json:"coach"`
	RelationshipID string       `json:"relationship_id"`
	ConnectedAt    time.Time    `json:"connected_at"`
}

// RelationshipOption customises RelationshipService behaviour.
type RelationshipOption func(*RelationshipService)

// WithRelationshipClock injects a custom clock primarily for testing.
func WithRelationshipClock(clock func() time.Time) RelationshipOption {
	return func(s *RelationshipService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithRelationshipAudit records revocations.
func WithRelationshipAudit(audit *AuditService) RelationshipOption {
	return func(s *RelationshipService) {
		s.audit = audit
	}
}

// RelationshipService manages accepted coach/client relationships.
type RelationshipService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewRelationshipService constructs a RelationshipService.
func NewRelationshipService(db *gorm.DB, opts ...RelationshipOption) (*RelationshipService, error) {
	if db == nil {
		return nil, errors.New("relationship service: db is required")
	}
	service := &RelationshipService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Revoke ends an accepted relationship. The row moves to the terminal revoked state and the
// coach loses access immediately.
func (s *RelationshipService) Revoke(ctx context.Context, coachID, clientID string) (*models.CoachClientRelationship, error) {
	ctx = ensureContext(ctx)

	rel, err := s.findAccepted(ctx, coachID, clientID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("id = ? AND status = ?", rel.ID, models.RelationshipAccepted).
		Updates(map[string]any{
			"status":          models.RelationshipRevoked,
			"revoked_at":      now,
			"decision_reason": models.ReasonCoachRevoked,
			"active_pair":     nil,
			"updated_at":      now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("relationship service: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrRelationshipNotFound
	}

	rel.Status = models.RelationshipRevoked
	rel.RevokedAt = &now
	rel.DecisionReason = models.ReasonCoachRevoked
	rel.ActivePair = nil
	rel.UpdatedAt = now

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  rel.CoachID,
		Action:   AuditRelationshipRevoked,
		Resource: "relationship:" + rel.ID,
		Result:   "success",
		Metadata: map[string]any{"client_id": clientID},
	})
	return rel, nil
}

// ListClients returns the coach's accepted clients, most recently connected first.
func (s *RelationshipService) ListClients(ctx context.Context, coachID string) ([]ClientSummary, error) {
	ctx = ensureContext(ctx)

	clients := []ClientSummary{}
	coachID = strings.TrimSpace(coachID)
	if coachID == "" {
		return clients, nil
	}

	var rows []models.CoachClientRelationship
	if err := s.db.WithContext(ctx).
		Where("coach_id = ? AND status = ?", coachID, models.RelationshipAccepted).
		Order("decided_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("relationship service: list clients: %w", err)
	}
	if len(rows) == 0 {
		return clients, nil
	}

	names, err := loadDisplayNames(ctx, s.db, rows)
	if err != nil {
		return nil, fmt.Errorf("relationship service: load clients: %w", err)
	}

	for i := range rows {
		clients = append(clients, clientSummary(&rows[i], names))
	}
	return clients, nil
}

// GetClient returns one accepted client of the coach.
func (s *RelationshipService) GetClient(ctx context.Context, coachID, clientID string) (*ClientSummary, error) {
	ctx = ensureContext(ctx)

	rel, err := s.findAccepted(ctx, coachID, clientID)
	if err != nil {
		return nil, err
	}

	names, err := loadDisplayNames(ctx, s.db, []models.CoachClientRelationship{*rel})
	if err != nil {
		return nil, fmt.Errorf("relationship service: load client: %w", err)
	}
	summary := clientSummary(rel, names)
	return &summary, nil
}

// ListCoachesForClient returns the coaches the client has accepted.
func (s *RelationshipService) ListCoachesForClient(ctx context.Context, clientID string) ([]CoachConnection, error) {
	ctx = ensureContext(ctx)

	connections := []CoachConnection{}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return connections, nil
	}

	var rows []models.CoachClientRelationship
	if err := s.db.WithContext(ctx).
		Where("client_id = ? AND status = ?", clientID, models.RelationshipAccepted).
		Order("decided_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("relationship service: list coaches: %w", err)
	}
	if len(rows) == 0 {
		return connections, nil
	}

	coachIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		coachIDs = append(coachIDs, row.CoachID)
	}

	var coaches []models.Coach
	if err := s.db.WithContext(ctx).Preload("User").Where("user_id IN ?", coachIDs).Find(&coaches).Error; err != nil {
		return nil, fmt.Errorf("relationship service: load coaches: %w", err)
	}
	byID := make(map[string]*models.Coach, len(coaches))
	for i := range coaches {
		byID[coaches[i].UserID] = &coaches[i]
	}

	for _, row := range rows {
		connection := CoachConnection{
			Coach:          CoachSummary{ID: row.CoachID},
			RelationshipID: row.ID,
		}
		if coach, ok := byID[row.CoachID]; ok {
			connection.Coach = summariseCoach(coach)
		}
		if row.DecidedAt != nil {
			connection.ConnectedAt = *row.DecidedAt
		}
		connections = append(connections, connection)
	}
	return connections, nil
}

func (s *RelationshipService) findAccepted(ctx context.Context, coachID, clientID string) (*models.CoachClientRelationship, error) {
	coachID = strings.TrimSpace(coachID)
	clientID = strings.TrimSpace(clientID)
	if coachID == "" || clientID == "" {
		return nil, ErrRelationshipNotFound
	}

	var rel models.CoachClientRelationship
	if err := s.db.WithContext(ctx).
		Where("coach_id = ? AND client_id = ? AND status = ?", coachID, clientID, models.RelationshipAccepted).
		First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRelationshipNotFound
		}
		return nil, fmt.Errorf("relationship service: load relationship: %w", err)
	}
	return &rel, nil
}

func clientSummary(rel *models.CoachClientRelationship, names displayNames) ClientSummary {
	summary := ClientSummary{
		Email:          rel.ClientEmail,
		RelationshipID: rel.ID,
	}
	if rel.ClientID != nil {
		summary.ID = *rel.ClientID
		summary.Name = names.byID[*rel.ClientID]
	}
	if summary.Name == "" {
		summary.Name = names.byEmail[normaliseEmail(rel.ClientEmail)]
	}
	if rel.DecidedAt != nil {
		summary.ConnectedAt = *rel.DecidedAt
	}
	return summary
}
