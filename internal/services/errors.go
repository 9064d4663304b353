package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/nutriplan/nutriplan/pkg/errors"
)

// Recovery actions suggested to clients alongside workflow errors.
const (
	ActionRequestNewInvitation = "request_new_invitation"
	ActionGoToDashboard        = "go_to_dashboard"
)

var (
	// ErrInvalidOrExpiredToken covers missing link parameters, a failed token/coach/request match
	// and expired links. The cases are indistinguishable to callers.
	ErrInvalidOrExpiredToken = apperrors.New("INVALID_OR_EXPIRED_TOKEN", "This approval link is invalid or has expired", http.StatusBadRequest).
					WithAction(ActionRequestNewInvitation)
	// ErrAlreadyProcessed means the request already left the pending state.
	ErrAlreadyProcessed = apperrors.New("ALREADY_PROCESSED", "This request has already been processed", http.StatusConflict).
				WithAction(ActionGoToDashboard)
	// ErrRelationshipAlreadyExists means the coach already has an accepted relationship with the client.
	ErrRelationshipAlreadyExists = apperrors.New("RELATIONSHIP_ALREADY_EXISTS", "You are already connected with this coach", http.StatusConflict).
					WithAction(ActionGoToDashboard)
	// ErrRecipientMismatch means the signed-in account is not the invitee.
	ErrRecipientMismatch = apperrors.New("RECIPIENT_MISMATCH", "This invitation was sent to a different account", http.StatusForbidden).
				WithAction(ActionGoToDashboard)
	// ErrSelfInvitation rejects a coach inviting or approving themselves.
	ErrSelfInvitation = apperrors.New("SELF_INVITATION", "Coaches cannot invite themselves", http.StatusBadRequest)
	// ErrNotCoach is rendered as not found so the coach surface is not discoverable.
	ErrNotCoach = apperrors.New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	// ErrAlreadyCoach rejects registering a coach profile twice.
	ErrAlreadyCoach = apperrors.New("COACH_EXISTS", "Coach profile already exists", http.StatusConflict)
	// ErrClientNotFound means an invitee user id does not resolve to a known profile.
	ErrClientNotFound = apperrors.New("CLIENT_NOT_FOUND", "Client not found", http.StatusNotFound)
	// ErrInvitationAlreadyPending is returned when duplicate pending invitations are disabled.
	ErrInvitationAlreadyPending = apperrors.New("INVITATION_ALREADY_PENDING", "An invitation to this client is already pending", http.StatusConflict)
	// ErrInvitationNotFound means no invitation of the calling coach has the given id.
	ErrInvitationNotFound = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", http.StatusNotFound)
	// ErrRelationshipNotFound means no accepted relationship exists for the coach and client.
	ErrRelationshipNotFound = apperrors.New("RELATIONSHIP_NOT_FOUND", "Client relationship not found", http.StatusNotFound)
	// ErrInvalidStatusFilter rejects unknown status filters on listings.
	ErrInvalidStatusFilter = apperrors.New("INVALID_STATUS", "Status must be one of pending, accepted, declined or revoked", http.StatusBadRequest)
	// ErrEmailInUse means another profile already owns the email address.
	ErrEmailInUse = apperrors.New("EMAIL_IN_USE", "Email address is already used by another account", http.StatusConflict)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}
