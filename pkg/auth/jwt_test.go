package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-0123456789ab"

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService("too-short")
	assert.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc, err := NewJWTService(testSecret)
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(42, "user@example.com", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	svc, err := NewJWTService(testSecret)
	require.NoError(t, err)

	token, err := svc.GenerateRefreshToken(42, "sess-1", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ParseRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	svc, err := NewJWTService(testSecret)
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(42, "user@example.com", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signer, err := NewJWTService(testSecret)
	require.NoError(t, err)
	verifier, err := NewJWTService("another-secret-key-0123456789abcdef")
	require.NoError(t, err)

	token, err := signer.GenerateAccessToken(42, "user@example.com", time.Minute)
	require.NoError(t, err)

	_, err = verifier.ParseAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsTamperedToken(t *testing.T) {
	svc, err := NewJWTService(testSecret)
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(42, "user@example.com", time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = svc.ParseAccessToken(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
