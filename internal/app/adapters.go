package app

import (
	"strings"

	"github.com/nutriplan/nutriplan/internal/auth"
	"github.com/nutriplan/nutriplan/internal/services"
	"github.com/nutriplan/nutriplan/pkg/mail"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the session token verifier.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		Audience:       c.JWT.Audience,
		AccessTokenTTL: ttl,
	}
}

// SMTPSettings returns the invitation mailer settings. Host and sender are trimmed so values
// copied from env files with stray spaces still dial.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     strings.TrimSpace(smtp.From),
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}

// InvitationOptions converts the invitation settings into InvitationService options.
// A zero or negative expiry issues links without a deadline.
func (c *Config) InvitationOptions(audit *services.AuditService) []services.InvitationOption {
	opts := []services.InvitationOption{
		services.WithInvitationBaseURL(c.ApprovalURL()),
		services.WithPendingDeduplication(c.Invitations.DeduplicatePending),
		services.WithInvitationAudit(audit),
	}

	if c.Invitations.Expiry > 0 {
		opts = append(opts, services.WithInvitationExpiry(c.Invitations.Expiry))
	} else {
		opts = append(opts, services.WithInvitationExpiry(-1))
	}

	if c.Invitations.TokenBytes > 0 {
		opts = append(opts, services.WithInvitationTokenSize(c.Invitations.TokenBytes))
	}
	return opts
}
