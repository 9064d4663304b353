package models

import "time"

// Coach marks a user as a nutrition coach. The presence of a row is what makes the user a coach.
type Coach struct {
	UserID          string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	Certification   string    `gorm:"size:255" json:"certification,omitempty"`
	Description     string    `gorm:"type:text" json:"description,omitempty"`
	YearsExperience int       `gorm:"default:0" json:"years_experience"`
	JoinedAt        time.Time `gorm:"not null" json:"joined_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}
