package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nutriplan/nutriplan/internal/auth"
	testutil "github.com/nutriplan/nutriplan/internal/database/testutil"
	"github.com/nutriplan/nutriplan/internal/models"
	"github.com/nutriplan/nutriplan/internal/services"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "json", cfg.Server.LogFormat)
	require.Equal(t, []string{"https://app.nutriplan.test", "https://admin.nutriplan.test"}, cfg.Server.CORS.AllowedOrigins)
	require.False(t, cfg.Server.RateLimit.Enabled)
	require.Equal(t, 10, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)
	require.Equal(t, "database", cfg.Server.RateLimit.Store)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 6543, cfg.Database.Postgres.Port)
	require.Equal(t, "require", cfg.Database.Postgres.Options["sslmode"])
	require.Equal(t, 20, cfg.Database.Pool.MaxOpenConns)
	require.Equal(t, 30*time.Minute, cfg.Database.Pool.ConnMaxLifetime)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "authenticated", cfg.Auth.JWT.Audience)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, 72*time.Hour, cfg.Invitations.Expiry)
	require.Equal(t, 48, cfg.Invitations.TokenBytes)
	require.True(t, cfg.Invitations.DeduplicatePending)
	require.Equal(t, "https://app.nutriplan.test/coach-approval", cfg.ApprovalURL())

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 5m", cfg.Maintenance.InvitationSchedule)
	require.Equal(t, "@daily", cfg.Maintenance.AuditSchedule)
	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("NUTRIPLAN_SERVER_PORT", "7070")
	t.Setenv("NUTRIPLAN_AUTH_JWT_SECRET", "from-env")
	t.Setenv("NUTRIPLAN_INVITATIONS_DEDUPLICATE_PENDING", "true")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	require.True(t, cfg.Invitations.DeduplicatePending)

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 7*24*time.Hour, cfg.Invitations.Expiry)
	require.Equal(t, 32, cfg.Invitations.TokenBytes)
	require.Equal(t, "http://localhost:3000/coach-approval", cfg.ApprovalURL())
	require.Equal(t, time.Minute, cfg.Server.RateLimit.Window)
	require.Equal(t, "memory", cfg.Server.RateLimit.Store)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret:   "secret",
				Issuer:   "issuer",
				Audience: "authenticated",
				TTL:      30 * time.Minute,
			},
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		Audience:       "authenticated",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.Auth.JWTServiceConfig())

	var empty AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, empty.JWTServiceConfig().AccessTokenTTL)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     " smtp.example.com ",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com\n",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
}

func TestInvitationOptions(t *testing.T) {
	cfg := &Config{}
	cfg.Server.PublicURL = "https://app.nutriplan.test"
	cfg.Invitations.ApprovalPath = "/coach-approval"
	cfg.Invitations.Expiry = time.Hour
	cfg.Invitations.TokenBytes = 24

	require.Len(t, cfg.InvitationOptions(nil), 5)

	cfg.Invitations.Expiry = 0
	cfg.Invitations.TokenBytes = 0
	require.Len(t, cfg.InvitationOptions(nil), 4)

	cfg.Invitations.ApprovalPath = ""
	require.Equal(t, "https://app.nutriplan.test", cfg.ApprovalURL())
}

func TestInvitationOptionsZeroExpiryDisablesDeadline(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	coach := models.User{Email: "coach@example.com", FullName: "Casey Coach"}
	require.NoError(t, db.Create(&coach).Error)
	require.NoError(t, db.Create(&models.Coach{UserID: coach.ID, JoinedAt: time.Now()}).Error)

	cfg := &Config{}
	cfg.Server.PublicURL = "https://app.nutriplan.test"
	cfg.Invitations.ApprovalPath = "/coach-approval"

	for _, expiry := range []time.Duration{0, -time.Hour} {
		cfg.Invitations.Expiry = expiry
		svc, err := services.NewInvitationService(db, nil, cfg.InvitationOptions(nil)...)
		require.NoError(t, err)

		inv, err := svc.CreateInvitation(context.Background(), services.CreateInvitationInput{
			CoachID: coach.ID,
			Client:  "client@example.com",
		})
		require.NoError(t, err)
		require.Nil(t, inv.Relationship.ExpiresAt, "expiry %s", expiry)
	}

	cfg.Invitations.Expiry = time.Hour
	svc, err := services.NewInvitationService(db, nil, cfg.InvitationOptions(nil)...)
	require.NoError(t, err)
	inv, err := svc.CreateInvitation(context.Background(), services.CreateInvitationInput{
		CoachID: coach.ID,
		Client:  "other@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, inv.Relationship.ExpiresAt)
}
