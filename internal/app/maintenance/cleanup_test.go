package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/nutriplan/nutriplan/internal/database/testutil"
	"github.com/nutriplan/nutriplan/internal/models"
	"github.com/nutriplan/nutriplan/internal/services"
)

type fixedClock struct {
	current time.Time
}

func (c fixedClock) Now() time.Time {
	return c.current
}

func seedInvitation(t *testing.T, db *gorm.DB, status models.RelationshipStatus, expiresAt *time.Time) models.CoachClientRelationship {
	t.Helper()
	rel := models.CoachClientRelationship{
		CoachID:     uuid.NewString(),
		ClientEmail: "client@example.com",
		Status:      status,
		TokenHash:   uuid.NewString(),
		RequestedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		ExpiresAt:   expiresAt,
	}
	require.NoError(t, db.Create(&rel).Error)
	return rel
}

func reload(t *testing.T, db *gorm.DB, id string) models.CoachClientRelationship {
	t.Helper()
	var rel models.CoachClientRelationship
	require.NoError(t, db.First(&rel, "id = ?", id).Error)
	return rel
}

func TestExpireStaleInvitations(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	stale := seedInvitation(t, db, models.RelationshipPending, &past)
	fresh := seedInvitation(t, db, models.RelationshipPending, &future)
	unbounded := seedInvitation(t, db, models.RelationshipPending, nil)
	accepted := seedInvitation(t, db, models.RelationshipAccepted, &past)

	expired, err := ExpireStaleInvitations(context.Background(), db, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	got := reload(t, db, stale.ID)
	require.Equal(t, models.RelationshipDeclined, got.Status)
	require.Equal(t, models.ReasonExpired, got.DecisionReason)
	require.NotNil(t, got.DecidedAt)

	require.Equal(t, models.RelationshipPending, reload(t, db, fresh.ID).Status)
	require.Equal(t, models.RelationshipPending, reload(t, db, unbounded.ID).Status)
	require.Equal(t, models.RelationshipAccepted, reload(t, db, accepted.ID).Status)

	expired, err = ExpireStaleInvitations(context.Background(), db, now)
	require.NoError(t, err)
	require.Zero(t, expired)

	_, err = ExpireStaleInvitations(context.Background(), nil, now)
	require.Error(t, err)
}

func TestExpiredLinkStaysInvalidAfterSweep(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	coach := models.User{Email: "coach@example.com", FullName: "Casey Coach"}
	require.NoError(t, db.Create(&coach).Error)
	require.NoError(t, db.Create(&models.Coach{UserID: coach.ID, JoinedAt: current}).Error)
	client := models.User{Email: "client@example.com", FullName: "Riley Client"}
	require.NoError(t, db.Create(&client).Error)

	invitations, err := services.NewInvitationService(db, nil,
		services.WithInvitationBaseURL("https://app.nutriplan.test/coach-approval"),
		services.WithInvitationClock(clock),
	)
	require.NoError(t, err)
	approvals, err := services.NewApprovalService(db, services.WithApprovalClock(clock))
	require.NoError(t, err)

	inv, err := invitations.CreateInvitation(context.Background(), services.CreateInvitationInput{
		CoachID: coach.ID,
		Client:  client.Email,
	})
	require.NoError(t, err)

	input := services.ApprovalInput{
		Token:     inv.ApprovalToken,
		CoachID:   coach.ID,
		RequestID: inv.RequestID,
		Client:    services.Identity{UserID: client.ID, Email: client.Email},
	}

	current = current.Add(8 * 24 * time.Hour)
	_, err = approvals.Approve(context.Background(), input)
	require.ErrorIs(t, err, services.ErrInvalidOrExpiredToken)

	expired, err := ExpireStaleInvitations(context.Background(), db, current)
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	_, err = approvals.Approve(context.Background(), input)
	require.ErrorIs(t, err, services.ErrInvalidOrExpiredToken)
	_, err = approvals.Decline(context.Background(), input)
	require.ErrorIs(t, err, services.ErrInvalidOrExpiredToken)
	require.Equal(t, models.ReasonExpired, reload(t, db, inv.RequestID).DecisionReason)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	past := clock.Now().Add(-time.Minute)
	stale := seedInvitation(t, db, models.RelationshipPending, &past)

	// Seed an audit log older than the retention window.
	require.NoError(t, db.Create(&models.AuditLog{
		Action:    "test.action",
		Result:    "success",
		CreatedAt: time.Now().AddDate(0, 0, -40),
	}).Error)

	cleaner := NewCleaner(db, auditSvc,
		WithNow(clock.Now),
		WithAuditRetentionDays(30),
	)
	require.NoError(t, cleaner.RunOnce(context.Background()))

	require.Equal(t, models.RelationshipDeclined, reload(t, db, stale.ID).Status)

	var oldLogs int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", "test.action").Count(&oldLogs).Error)
	require.Zero(t, oldLogs)

	var expiryLogs int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", services.AuditInvitationExpired).Count(&expiryLogs).Error)
	require.Equal(t, int64(1), expiryLogs)
}

type stubPurger struct {
	calls int
	err   error
}

func (s *stubPurger) PurgeExpired(context.Context) (int64, error) {
	s.calls++
	return int64(s.calls), s.err
}

func TestCleanerPurgesRateCounters(t *testing.T) {
	purger := &stubPurger{}
	cleaner := NewCleaner(nil, nil, WithCounterPurger(purger))
	require.NoError(t, cleaner.RunOnce(context.Background()))
	require.Equal(t, 1, purger.calls)

	purger.err = errors.New("locked")
	err := cleaner.RunOnce(context.Background())
	require.ErrorContains(t, err, "purge rate counters: locked")
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = NewCleaner(db, auditSvc).RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "expire invitations")
	require.Contains(t, err.Error(), "audit service")
}

func TestCleanerStartAndStop(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	cleaner := NewCleaner(db, auditSvc,
		WithCron(scheduler),
		WithInvitationSchedule("@every 1h"),
		WithAuditSchedule("@every 2h"),
	)
	require.NoError(t, cleaner.Start())
	require.Len(t, scheduler.Entries(), 2)

	ctx := cleaner.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}

	bad := NewCleaner(db, nil, WithInvitationSchedule("not a schedule"))
	require.Error(t, bad.Start())

	idle := NewCleaner(nil, nil)
	require.NoError(t, idle.Start())
	require.NoError(t, idle.RunOnce(context.Background()))
}
