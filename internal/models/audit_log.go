package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of a relationship transition or coach action.
type AuditLog struct {
	ID       string         `gorm:"primaryKey;type:uuid" json:"id"`
	ActorID  *string        `gorm:"type:uuid;index" json:"actor_id,omitempty"`
	Action   string         `gorm:"size:64;not null;index" json:"action"`
	Resource string         `gorm:"size:128;index" json:"resource"`
	Result   string         `gorm:"size:32;not null" json:"result"`
	Metadata datatypes.JSON `json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
