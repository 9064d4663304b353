package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/models"
	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/logger"
	"github.com/nutriplan/nutriplan/pkg/metrics"
)

const (
	defaultAuditRetentionDays = 90
	defaultInvitationSpec     = "@every 15m"
	defaultAuditSpec          = "@daily"
)

// CounterPurger removes rate limit counters whose window has closed.
type CounterPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance tasks. It closes invitations whose approval link
// expired, prunes stale audit logs and drops closed rate limit windows.
type Cleaner struct {
	db        *gorm.DB
	audit     *services.AuditService
	counters  CounterPurger
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int

	invitationSchedule string
	auditSchedule      string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithCounterPurger schedules removal of expired rate limit counters alongside invitation expiry.
func WithCounterPurger(p CounterPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.counters = p
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithInvitationSchedule overrides the cron specification for expiring stale invitations.
func WithInvitationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.invitationSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:                 db,
		audit:              audit,
		now:                time.Now,
		retention:          defaultAuditRetentionDays,
		invitationSchedule: defaultInvitationSpec,
		auditSchedule:      defaultAuditSpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.audit != nil || cleaner.db != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.invitationSchedule, func() {
			if _, err := c.expireInvitations(context.Background()); err != nil {
				c.log.Warn("invitation expiry failed", zap.Error(err))
			}
			if err := c.purgeCounters(context.Background()); err != nil {
				c.log.Warn("rate counter purge failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule invitation expiry: %w", err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule audit cleanup: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.db != nil {
		if _, err := c.expireInvitations(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if err := c.purgeCounters(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) expireInvitations(ctx context.Context) (int64, error) {
	expired, err := ExpireStaleInvitations(ctx, c.db, c.now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		c.log.Info("expired stale invitations", zap.Int64("count", expired))
		if c.audit != nil {
			if err := c.audit.Log(ctx, services.AuditEntry{
				Action:   services.AuditInvitationExpired,
				Resource: "relationship",
				Result:   "success",
				Metadata: map[string]any{"count": expired},
			}); err != nil {
				c.log.Warn("audit write failed", zap.Error(err))
			}
		}
	}
	return expired, nil
}

func (c *Cleaner) purgeCounters(ctx context.Context) error {
	if c.counters == nil {
		return nil
	}
	purged, err := c.counters.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge rate counters: %w", err)
	}
	if purged > 0 {
		c.log.Debug("purged rate counters", zap.Int64("count", purged))
	}
	return nil
}

// ExpireStaleInvitations closes pending invitations whose approval link passed its deadline.
// Rows move to declined with reason "expired" and are kept as history. The update is
// conditioned on the pending status so a concurrent approval is never overwritten.
func ExpireStaleInvitations(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("expire invitations: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Model(&models.CoachClientRelationship{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.RelationshipPending, now).
		Updates(map[string]any{
			"status":          models.RelationshipDeclined,
			"decision_reason": models.ReasonExpired,
			"decided_at":      now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("expire invitations: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.InvitationsExpired.Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}
