package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/database/testutil"
	"github.com/nutriplan/nutriplan/internal/models"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func createUser(t *testing.T, db *gorm.DB, email, name string) models.User {
	t.Helper()
	user := models.User{Email: email, FullName: name}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createCoach(t *testing.T, db *gorm.DB, email, name string) models.User {
	t.Helper()
	user := createUser(t, db, email, name)
	require.NoError(t, db.Create(&models.Coach{UserID: user.ID, JoinedAt: time.Now()}).Error)
	return user
}

func identityOf(u models.User) Identity {
	return Identity{UserID: u.ID, Email: u.Email}
}

func loadRelationship(t *testing.T, db *gorm.DB, id string) models.CoachClientRelationship {
	t.Helper()
	var rel models.CoachClientRelationship
	require.NoError(t, db.First(&rel, "id = ?", id).Error)
	return rel
}

func countRelationships(t *testing.T, db *gorm.DB, where string, args ...any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.CoachClientRelationship{}).Where(where, args...).Count(&count).Error)
	return count
}

// queryCounter counts statements gorm issues against a database handle.
type queryCounter struct {
	mu    sync.Mutex
	count int
}

func (q *queryCounter) attach(t *testing.T, db *gorm.DB) {
	t.Helper()
	inc := func(*gorm.DB) {
		q.mu.Lock()
		q.count++
		q.mu.Unlock()
	}
	cb := db.Callback()
	require.NoError(t, cb.Query().Before("gorm:query").Register("test:count_query", inc))
	require.NoError(t, cb.Update().Before("gorm:update").Register("test:count_update", inc))
	require.NoError(t, cb.Row().Before("gorm:row").Register("test:count_row", inc))
}

func (q *queryCounter) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

var bg = context.Background()
