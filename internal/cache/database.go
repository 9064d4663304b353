package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nutriplan/nutriplan/internal/models"
)

// DatabaseStore keeps rate limit counters in the primary SQL database so that every API
// instance throttles against the same window.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed counter store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

// Increment atomically bumps the counter for key, opening a new window when the stored one elapsed.
func (s *DatabaseStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if s == nil {
		return 0, 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now()
	var counter models.RateCounter

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock; sqlite ignores the clause and serialises writers instead.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&counter, "key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = models.RateCounter{Key: key, Count: 1, ExpiresAt: now.Add(window)}
			return tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "key"}},
				DoUpdates: clause.Assignments(map[string]any{
					"count":      gorm.Expr("count + 1"),
					"updated_at": now,
				}),
			}).Create(&counter).Error
		}
		if err != nil {
			return err
		}

		if !counter.ExpiresAt.After(now) {
			counter.Count = 1
			counter.ExpiresAt = now.Add(window)
		} else {
			counter.Count++
		}
		return tx.Save(&counter).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return int(counter.Count), counter.ExpiresAt.Sub(now), nil
}

// PurgeExpired deletes counters whose window closed before now.
func (s *DatabaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.RateCounter{})
	return result.RowsAffected, result.Error
}
