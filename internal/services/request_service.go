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

const (
	defaultRecentRequests = 5
	maxRequestListLimit   = 500
)

// RequestFilter narrows a coach's request listing.
type RequestFilter struct {
	// Status is one of pending, accepted, declined or revoked. Empty lists every status.
	Status string
	// Limit caps the number of rows returned. Zero returns every row.
	Limit int
}

// RequestSummary is one row of a coach's request history.
type RequestSummary struct {
	ID             string                    `json:"id"`
	ClientID       *string                   `json:"client_id,omitempty"`
	ClientEmail    string                    `json:"client_email"`
	ClientName     string                    `json:"client_name,omitempty"`
	Status         models.RelationshipStatus `json:"status"`
	Message        string                    `json:"message,omitempty"`
	RequestedAt    time.Time                 `json:"requested_at"`
	ExpiresAt      *time.Time                `json:"expires_at,omitempty"`
	DecidedAt      *time.Time                `json:"decided_at,omitempty"`
	DecisionReason string                    `json:"decision_reason,omitempty"`
	Expired        bool                      `json:"expired"`
}

// RequestStats aggregates a coach's request counters for the dashboard.
type RequestStats struct {
	Pending        int64 `json:"pending"`
	AcceptedToday  int64 `json:"accepted_today"`
	DeclinedToday  int64 `json:"declined_today"`
	TotalThisMonth int64 `json:"total_this_month"`
	ActiveClients  int64 `json:"active_clients"`
}

// RequestOption customises RequestService behaviour.
type RequestOption func(*RequestService)

// WithRequestClock injects a custom clock primarily for testing.
func WithRequestClock(clock func() time.Time) RequestOption {
	return func(s *RequestService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RequestService serves read-only views of a coach's invitations.
type RequestService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRequestService constructs a RequestService.
func NewRequestService(db *gorm.DB, opts ...RequestOption) (*RequestService, error) {
	if db == nil {
		return nil, errors.New("request service: db is required")
	}
	service := &RequestService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ListRequests returns the coach's requests, newest first.
func (s *RequestService) ListRequests(ctx context.Context, coachID string, filter RequestFilter) ([]RequestSummary, error) {
	ctx = ensureContext(ctx)

	coachID = strings.TrimSpace(coachID)
	if coachID == "" {
		return []RequestSummary{}, nil
	}

	query := s.db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("coach_id = ?", coachID)

	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status, ok := models.ParseRelationshipStatus(raw)
		if !ok {
			return nil, ErrInvalidStatusFilter
		}
		query = query.Where("status = ?", status)
	}

	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > maxRequestListLimit {
			limit = maxRequestListLimit
		}
		query = query.Limit(limit)
	}

	var rows []models.CoachClientRelationship
	if err := query.Order("requested_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("request service: list requests: %w", err)
	}

	return s.summarise(ctx, rows)
}

// RecentRequests returns the latest requests of any status for the dashboard widget.
func (s *RequestService) RecentRequests(ctx context.Context, coachID string, limit int) ([]RequestSummary, error) {
	if limit <= 0 {
		limit = defaultRecentRequests
	}
	return s.ListRequests(ctx, coachID, RequestFilter{Limit: limit})
}

// Stats counts pending requests, today's decisions, this month's requests and active clients.
func (s *RequestService) Stats(ctx context.Context, coachID string) (*RequestStats, error) {
	ctx = ensureContext(ctx)

	stats := &RequestStats{}
	coachID = strings.TrimSpace(coachID)
	if coachID == "" {
		return stats, nil
	}

	now := s.now()
	dayStart := startOfDay(now)
	monthStart := startOfMonth(now)

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).
			Model(&models.CoachClientRelationship{}).
			Where("coach_id = ?", coachID)
	}

	counters := []struct {
		target *int64
		query  *gorm.DB
		label  string
	}{
		{&stats.Pending, base().Where("status = ?", models.RelationshipPending), "pending"},
		{&stats.AcceptedToday, base().Where("status = ? AND decided_at >= ?", models.RelationshipAccepted, dayStart), "accepted today"},
		{&stats.DeclinedToday, base().Where("status = ? AND decided_at >= ?", models.RelationshipDeclined, dayStart), "declined today"},
		{&stats.TotalThisMonth, base().Where("requested_at >= ?", monthStart), "this month"},
		{&stats.ActiveClients, base().Where("status = ?", models.RelationshipAccepted), "active clients"},
	}

	for _, counter := range counters {
		if err := counter.query.Count(counter.target).Error; err != nil {
			return nil, fmt.Errorf("request service: count %s: %w", counter.label, err)
		}
	}

	return stats, nil
}

func (s *RequestService) summarise(ctx context.Context, rows []models.CoachClientRelationship) ([]RequestSummary, error) {
	summaries := make([]RequestSummary, 0, len(rows))
	if len(rows) == 0 {
		return summaries, nil
	}

	names, err := loadDisplayNames(ctx, s.db, rows)
	if err != nil {
		return nil, fmt.Errorf("request service: load clients: %w", err)
	}

	now := s.now()
	for i := range rows {
		row := &rows[i]
		summary := RequestSummary{
			ID:             row.ID,
			ClientID:       row.ClientID,
			ClientEmail:    row.ClientEmail,
			Status:         row.Status,
			Message:        row.RequestMessage,
			RequestedAt:    row.RequestedAt,
			ExpiresAt:      row.ExpiresAt,
			DecidedAt:      row.DecidedAt,
			DecisionReason: row.DecisionReason,
			Expired:        row.Status == models.RelationshipPending && row.Expired(now),
		}
		if row.ClientID != nil {
			summary.ClientName = names.byID[*row.ClientID]
		}
		if summary.ClientName == "" {
			summary.ClientName = names.byEmail[normaliseEmail(row.ClientEmail)]
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

type displayNames struct {
	byID    map[string]string
	byEmail map[string]string
}

// loadDisplayNames resolves client names for rows in two batched lookups.
func loadDisplayNames(ctx context.Context, db *gorm.DB, rows []models.CoachClientRelationship) (displayNames, error) {
	names := displayNames{byID: map[string]string{}, byEmail: map[string]string{}}

	idSet := map[string]struct{}{}
	emailSet := map[string]struct{}{}
	for _, row := range rows {
		if row.ClientID != nil && *row.ClientID != "" {
			idSet[*row.ClientID] = struct{}{}
		}
		if email := normaliseEmail(row.ClientEmail); email != "" {
			emailSet[email] = struct{}{}
		}
	}

	var users []models.User
	if len(idSet) > 0 {
		if err := db.WithContext(ctx).Where("id IN ?", setKeys(idSet)).Find(&users).Error; err != nil {
			return names, err
		}
	}
	if len(emailSet) > 0 {
		var byEmail []models.User
		if err := db.WithContext(ctx).Where("LOWER(email) IN ?", setKeys(emailSet)).Find(&byEmail).Error; err != nil {
			return names, err
		}
		users = append(users, byEmail...)
	}

	for i := range users {
		name := users[i].DisplayName()
		names.byID[users[i].ID] = name
		names.byEmail[normaliseEmail(users[i].Email)] = name
	}
	return names, nil
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}
