package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	existing := BaseModel{ID: "fixed"}
	require.NoError(t, existing.BeforeCreate(nil))
	require.Equal(t, "fixed", existing.ID)
}

func TestUserAndAuditLogGenerateIDs(t *testing.T) {
	user := &User{}
	require.NoError(t, user.BeforeCreate(nil))
	require.NotEmpty(t, user.ID)

	entry := &AuditLog{}
	require.NoError(t, entry.BeforeCreate(nil))
	require.NotEmpty(t, entry.ID)
}

func TestParseRelationshipStatus(t *testing.T) {
	cases := map[string]RelationshipStatus{
		"pending":    RelationshipPending,
		" Accepted ": RelationshipAccepted,
		"DECLINED":   RelationshipDeclined,
		"revoked":    RelationshipRevoked,
	}
	for input, want := range cases {
		got, ok := ParseRelationshipStatus(input)
		require.True(t, ok, input)
		require.Equal(t, want, got)
	}

	_, ok := ParseRelationshipStatus("approved")
	require.False(t, ok)
	_, ok = ParseRelationshipStatus("")
	require.False(t, ok)
}

func TestRelationshipStatusTerminal(t *testing.T) {
	require.False(t, RelationshipPending.Terminal())
	require.False(t, RelationshipAccepted.Terminal())
	require.True(t, RelationshipDeclined.Terminal())
	require.True(t, RelationshipRevoked.Terminal())
}

func TestRelationshipExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rel := CoachClientRelationship{}
	require.False(t, rel.Expired(now), "no deadline never expires")

	deadline := now.Add(time.Minute)
	rel.ExpiresAt = &deadline
	require.False(t, rel.Expired(now))
	require.True(t, rel.Expired(deadline))
	require.True(t, rel.Expired(deadline.Add(time.Second)))
}

func TestActivePairKeyAndDisplayName(t *testing.T) {
	require.Equal(t, "coach-1:client-1", ActivePairKey("coach-1", "client-1"))

	require.Equal(t, "Ada Lovelace", (&User{Email: "ada@example.com", FullName: "Ada Lovelace"}).DisplayName())
	require.Equal(t, "ada@example.com", (&User{Email: "ada@example.com"}).DisplayName())
	require.Equal(t, "", (*User)(nil).DisplayName())
	require.Equal(t, "coach_client_relationships", CoachClientRelationship{}.TableName())
}
