package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:         "super-secret",
		Issuer:         "nutriplan",
		Audience:       "authenticated",
		AccessTokenTTL: time.Hour,
		Clock:          now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID: "user-123",
		Email:  "Coach@Example.com",
		Name:   "Casey",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)

	require.Equal(t, "user-123", claims.UserID())
	require.Equal(t, "coach@example.com", claims.Email)
	require.Equal(t, "Casey", claims.Name)
	require.Equal(t, "nutriplan", claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"authenticated"}, claims.Audience)
	require.True(t, claims.IssuedAt.Time.Equal(current))
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))
}

func TestValidateAccessTokenInvalidSignature(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{
		Secret:         "issuer-secret",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	token, err := issuer.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{
		Secret:         "other-secret",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid))
}

func TestValidateAccessTokenExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	// Move time forward beyond expiry.
	current = current.Add(2 * time.Minute)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestValidateAccessTokenIssuerAndAudience(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC) }

	foreign, err := NewJWTService(JWTConfig{Secret: "shared", Issuer: "elsewhere", Audience: "other", Clock: now})
	require.NoError(t, err)
	token, err := foreign.GenerateAccessToken(AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	strictIssuer, err := NewJWTService(JWTConfig{Secret: "shared", Issuer: "nutriplan", Clock: now})
	require.NoError(t, err)
	_, err = strictIssuer.ValidateAccessToken(token)
	require.True(t, errors.Is(err, jwt.ErrTokenInvalidIssuer))

	strictAudience, err := NewJWTService(JWTConfig{Secret: "shared", Audience: "authenticated", Clock: now})
	require.NoError(t, err)
	_, err = strictAudience.ValidateAccessToken(token)
	require.True(t, errors.Is(err, jwt.ErrTokenInvalidAudience))

	lenient, err := NewJWTService(JWTConfig{Secret: "shared", Clock: now})
	require.NoError(t, err)
	claims, err := lenient.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID())

	_, err = lenient.ValidateAccessToken("")
	require.Error(t, err)
}
