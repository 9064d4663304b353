package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Coach{},
		&models.CoachClientRelationship{},
		&models.AuditLog{},
		&models.RateCounter{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return ensureRelationshipIndexes(db)
}

// ensureRelationshipIndexes adds the composite index backing coach listings, which gorm tags on a
// single column cannot express.
func ensureRelationshipIndexes(db *gorm.DB) error {
	const name = "idx_relationships_coach_requested"
	migrator := db.Migrator()
	if migrator.HasIndex(&models.CoachClientRelationship{}, name) {
		return nil
	}
	if err := db.Exec(
		"CREATE INDEX " + name + " ON coach_client_relationships (coach_id, requested_at)",
	).Error; err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}
