package models

import (
	"strings"
	"time"
)

// RelationshipStatus is the lifecycle state of a coach/client link.
type RelationshipStatus string

const (
	RelationshipPending  RelationshipStatus = "pending"
	RelationshipAccepted RelationshipStatus = "accepted"
	RelationshipDeclined RelationshipStatus = "declined"
	RelationshipRevoked  RelationshipStatus = "revoked"
)

// Decision reasons recorded when a relationship leaves pending or accepted.
const (
	ReasonClientDeclined = "client_declined"
	ReasonCoachWithdrew  = "coach_withdrew"
	ReasonExpired        = "expired"
	ReasonCoachRevoked   = "coach_revoked"
)

// ParseRelationshipStatus normalises s and reports whether it names a known status.
func ParseRelationshipStatus(s string) (RelationshipStatus, bool) {
	status := RelationshipStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case RelationshipPending, RelationshipAccepted, RelationshipDeclined, RelationshipRevoked:
		return status, true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s RelationshipStatus) Terminal() bool {
	return s == RelationshipDeclined || s == RelationshipRevoked
}

// CoachClientRelationship is a single invitation and, once accepted, the authorisation for a
// coach to act on a client's data. Rows are kept after every transition as history.
type CoachClientRelationship struct {
	BaseModel

	CoachID        string             `gorm:"type:uuid;not null;index" json:"coach_id"`
	ClientID       *string            `gorm:"type:uuid;index" json:"client_id,omitempty"`
	ClientEmail    string             `gorm:"size:320;not null;index" json:"client_email"`
	Status         RelationshipStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	TokenHash      string             `gorm:"size:64;not null;uniqueIndex" json:"-"`
	RequestMessage string             `gorm:"type:text" json:"request_message,omitempty"`
	RequestedAt    time.Time          `gorm:"not null;index" json:"requested_at"`
	ExpiresAt      *time.Time         `gorm:"index" json:"expires_at,omitempty"`
	DecidedAt      *time.Time         `json:"decided_at,omitempty"`
	RevokedAt      *time.Time         `json:"revoked_at,omitempty"`
	DecisionReason string             `gorm:"size:32" json:"decision_reason,omitempty"`

	// ActivePair holds "coach:client" while accepted and NULL otherwise; its unique index
	// admits a single accepted row per pair.
	ActivePair *string `gorm:"size:80;uniqueIndex" json:"-"`
}

// TableName pins the table name used by the store.
func (CoachClientRelationship) TableName() string {
	return "coach_client_relationships"
}

// Expired reports whether the approval link has passed its deadline at now.
func (r *CoachClientRelationship) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// ActivePairKey builds the value stored in ActivePair for an accepted relationship.
func ActivePairKey(coachID, clientID string) string {
	return coachID + ":" + clientID
}
