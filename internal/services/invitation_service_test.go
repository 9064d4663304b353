package services

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/models"
	"github.com/nutriplan/nutriplan/pkg/crypto"
	"github.com/nutriplan/nutriplan/pkg/mail"
)

func newInvitationServiceForTest(t *testing.T, db *gorm.DB, mailer mail.Mailer, clock *testClock, opts ...InvitationOption) *InvitationService {
	t.Helper()
	base := []InvitationOption{
		WithInvitationBaseURL("https://app.nutriplan.test/coach-approval/"),
		WithInvitationClock(clock.Now),
	}
	svc, err := NewInvitationService(db, mailer, append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func parseLink(t *testing.T, link string) url.Values {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "/coach-approval", parsed.Path)
	return parsed.Query()
}

func TestInvitationServiceCreateByEmail(t *testing.T) {
	db := openServiceTestDB(t)
	outbox := mail.NewOutbox()
	clock := newTestClock()
	svc := newInvitationServiceForTest(t, db, outbox, clock)

	coach := createCoach(t, db, "coach@example.com", "Casey Coach")

	inv, err := svc.CreateInvitation(bg, CreateInvitationInput{
		CoachID: coach.ID,
		Client:  "  Client@Example.com ",
		Message: "Let's plan your meals",
	})
	require.NoError(t, err)
	require.NotEmpty(t, inv.RequestID)
	require.NotEmpty(t, inv.ApprovalToken)
	require.True(t, inv.Delivered)

	stored := loadRelationship(t, db, inv.RequestID)
	require.Equal(t, models.RelationshipPending, stored.Status)
	require.Equal(t, "client@example.com", stored.ClientEmail)
	require.Nil(t, stored.ClientID)
	require.Equal(t, crypto.HashToken(inv.ApprovalToken), stored.TokenHash)
	require.NotEqual(t, inv.ApprovalToken, stored.TokenHash)
	require.True(t, stored.RequestedAt.Equal(clock.Now()))
	require.NotNil(t, stored.ExpiresAt)
	require.True(t, stored.ExpiresAt.Equal(clock.Now().Add(defaultInvitationExpiry)))

	query := parseLink(t, inv.Link)
	require.Equal(t, inv.ApprovalToken, query.Get("token"))
	require.Equal(t, inv.RequestID, query.Get("requestId"))
	require.Equal(t, coach.ID, query.Get("coachId"))

	msg, ok := outbox.Last("client@example.com")
	require.True(t, ok)
	require.Equal(t, "coach@example.com", msg.ReplyTo)
	require.Contains(t, msg.Subject, "Casey Coach")
	require.Contains(t, msg.Body, inv.Link)
	require.Contains(t, msg.Body, "Let's plan your meals")
}

func TestInvitationServiceTruncatesMessageByCharacter(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationServiceForTest(t, db, nil, newTestClock())
	coach := createCoach(t, db, "coach@example.com", "Casey Coach")

	message := strings.Repeat("a", maxRequestMessageLength-1) + "éé"
	inv, err := svc.CreateInvitation(bg, CreateInvitationInput{
		CoachID: coach.ID,
		Client:  "client@example.com",
		Message: message,
	})
	require.NoError(t, err)

	stored := loadRelationship(t, db, inv.RequestID).RequestMessage
	require.True(t, utf8.ValidString(stored))
	require.Equal(t, maxRequestMessageLength, utf8.RuneCountInString(stored))
	require.True(t, strings.HasSuffix(stored, "aé"))

	short := strings.Repeat("é", maxRequestMessageLength)
	require.Equal(t, short, truncateRunes(short, maxRequestMessageLength))
}

func TestInvitationServiceCreateByUserID(t *testing.T) {
	db := openServiceTestDB(t)
	clock := newTestClock()
	svc := newInvitationServiceForTest(t, db, mail.NewOutbox(), clock)

	coach := createCoach(t, db, "coach@example.com", "Coach")
	client := createUser(t, db, "Client@Example.com", "Client")

	inv, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: client.ID})
	require.NoError(t, err)

	stored := loadRelationship(t, db, inv.RequestID)
	require.NotNil(t, stored.ClientID)
	require.Equal(t, client.ID, *stored.ClientID)
	require.Equal(t, "client@example.com", stored.ClientEmail)

	_, err = svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "5f3c1b0e-0000-4000-8000-000000000000"})
	require.ErrorIs(t, err, ErrClientNotFound)
}

func TestInvitationServiceCreateRejections(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationServiceForTest(t, db, mail.NewOutbox(), newTestClock())

	coach := createCoach(t, db, "coach@example.com", "Coach")
	plain := createUser(t, db, "plain@example.com", "Plain")

	_, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "COACH@example.com"})
	require.ErrorIs(t, err, ErrSelfInvitation)

	_, err = svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: coach.ID})
	require.ErrorIs(t, err, ErrSelfInvitation)

	_, err = svc.CreateInvitation(bg, CreateInvitationInput{CoachID: plain.ID, Client: "client@example.com"})
	require.ErrorIs(t, err, ErrNotCoach)

	_, err = svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: " "})
	require.ErrorIs(t, err, ErrClientNotFound)

	require.Zero(t, countRelationships(t, db, "1 = 1"))
}

func TestInvitationServiceDuplicatePending(t *testing.T) {
	db := openServiceTestDB(t)
	clock := newTestClock()
	coach := createCoach(t, db, "coach@example.com", "Coach")

	t.Run("allowed by default", func(t *testing.T) {
		svc := newInvitationServiceForTest(t, db, mail.NewOutbox(), clock)
		first, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "dup@example.com"})
		require.NoError(t, err)
		second, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "dup@example.com"})
		require.NoError(t, err)
		require.NotEqual(t, first.ApprovalToken, second.ApprovalToken)
		require.Equal(t, int64(2), countRelationships(t, db, "client_email = ?", "dup@example.com"))
	})

	t.Run("rejected when deduplicating", func(t *testing.T) {
		svc := newInvitationServiceForTest(t, db, mail.NewOutbox(), clock, WithPendingDeduplication(true))
		_, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "once@example.com"})
		require.NoError(t, err)
		_, err = svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "ONCE@example.com"})
		require.ErrorIs(t, err, ErrInvitationAlreadyPending)

		clock.Advance(defaultInvitationExpiry + time.Minute)
		_, err = svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "once@example.com"})
		require.NoError(t, err)
	})
}

func TestInvitationServiceDeliveryFailureKeepsRequest(t *testing.T) {
	db := openServiceTestDB(t)
	outbox := mail.NewOutbox()
	svc := newInvitationServiceForTest(t, db, outbox, newTestClock())
	coach := createCoach(t, db, "coach@example.com", "Coach")

	outbox.FailWith(errors.New("smtp down"))
	inv, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "client@example.com"})
	require.NoError(t, err)
	require.False(t, inv.Delivered)
	require.Equal(t, models.RelationshipPending, loadRelationship(t, db, inv.RequestID).Status)

	outbox.FailWith(mail.ErrSMTPDisabled)
	inv, err = svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "client@example.com"})
	require.NoError(t, err)
	require.False(t, inv.Delivered)

	nilMailer, err := NewInvitationService(db, nil)
	require.NoError(t, err)
	inv, err = nilMailer.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "client@example.com"})
	require.NoError(t, err)
	require.False(t, inv.Delivered)
	require.True(t, strings.HasPrefix(inv.Link, "?token="))
}

func TestInvitationServiceOptions(t *testing.T) {
	db := openServiceTestDB(t)
	clock := newTestClock()
	coach := createCoach(t, db, "coach@example.com", "Coach")

	svc := newInvitationServiceForTest(t, db, nil, clock,
		WithInvitationExpiry(-1),
		WithInvitationTokenSize(48),
		WithInvitationTokenSize(4),
	)
	inv, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "client@example.com"})
	require.NoError(t, err)
	require.Nil(t, loadRelationship(t, db, inv.RequestID).ExpiresAt)
	require.Equal(t, 64, len(inv.ApprovalToken))

	_, err = NewInvitationService(nil, nil)
	require.Error(t, err)
}

func TestInvitationServiceResend(t *testing.T) {
	db := openServiceTestDB(t)
	outbox := mail.NewOutbox()
	clock := newTestClock()
	svc := newInvitationServiceForTest(t, db, outbox, clock)

	coach := createCoach(t, db, "coach@example.com", "Coach")
	other := createCoach(t, db, "other@example.com", "Other")

	inv, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "client@example.com"})
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	resent, err := svc.ResendInvitation(bg, coach.ID, inv.RequestID)
	require.NoError(t, err)
	require.Equal(t, inv.RequestID, resent.RequestID)
	require.NotEqual(t, inv.ApprovalToken, resent.ApprovalToken)

	stored := loadRelationship(t, db, inv.RequestID)
	require.Equal(t, crypto.HashToken(resent.ApprovalToken), stored.TokenHash)
	require.True(t, stored.ExpiresAt.Equal(clock.Now().Add(defaultInvitationExpiry)))
	require.Len(t, outbox.Messages(), 2)

	_, err = svc.ResendInvitation(bg, other.ID, inv.RequestID)
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = svc.WithdrawInvitation(bg, coach.ID, inv.RequestID)
	require.NoError(t, err)
	_, err = svc.ResendInvitation(bg, coach.ID, inv.RequestID)
	require.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestInvitationServiceWithdraw(t *testing.T) {
	db := openServiceTestDB(t)
	clock := newTestClock()
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc := newInvitationServiceForTest(t, db, nil, clock, WithInvitationAudit(audit))

	coach := createCoach(t, db, "coach@example.com", "Coach")
	inv, err := svc.CreateInvitation(bg, CreateInvitationInput{CoachID: coach.ID, Client: "client@example.com"})
	require.NoError(t, err)

	_, err = svc.WithdrawInvitation(bg, coach.ID, "")
	require.ErrorIs(t, err, ErrInvitationNotFound)

	rel, err := svc.WithdrawInvitation(bg, coach.ID, inv.RequestID)
	require.NoError(t, err)
	require.Equal(t, models.RelationshipDeclined, rel.Status)

	stored := loadRelationship(t, db, inv.RequestID)
	require.Equal(t, models.RelationshipDeclined, stored.Status)
	require.Equal(t, models.ReasonCoachWithdrew, stored.DecisionReason)
	require.NotNil(t, stored.DecidedAt)

	_, err = svc.WithdrawInvitation(bg, coach.ID, inv.RequestID)
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	logs, err := audit.List(bg, AuditFilters{ActorID: coach.ID})
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, entry := range logs {
		actions = append(actions, entry.Action)
	}
	require.ElementsMatch(t, []string{AuditInvitationCreated, AuditInvitationWithdrawn}, actions)
}
