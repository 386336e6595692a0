package jwttoken

import (
	"testing"
	"time"

	dErrors "kerbdash/pkg/domain-errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var sessionID = uuid.New()
var principal = "alice@EXAMPLE.COM"
var expiresIn = time.Hour

func Test_GenerateSessionToken(t *testing.T) {
	token, err := jwtService.GenerateSessionToken(sessionID, principal, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, sessionID.String(), claims.SessionID)
	assert.Equal(t, principal, claims.Principal)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateSessionToken(sessionID, principal, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("other-key", "test-issuer", "test-audience")
	token, err := other.GenerateSessionToken(sessionID, principal, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "someone-else")
	token, err := other.GenerateSessionToken(sessionID, principal, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ExtractSessionID(t *testing.T) {
	token, err := jwtService.GenerateSessionToken(sessionID, principal, expiresIn)
	require.NoError(t, err)

	got, err := jwtService.ExtractSessionID(token)
	require.NoError(t, err)
	assert.Equal(t, sessionID, got)
}

func Test_Adapter(t *testing.T) {
	token, err := jwtService.GenerateSessionToken(sessionID, principal, expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, principal, claims.Principal)
	assert.NotEmpty(t, claims.JTI)
}
